package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/plumbum082/DMFF/internal/geom"
)

// ReadXYZ reads the first frame of a plain XYZ file: an atom count line, a
// comment line, then one "element x y z" line per atom, coordinates in
// angstrom.
func ReadXYZ(path string) ([]geom.Vec, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	if !sc.Scan() {
		return nil, nil, fmt.Errorf("%s: empty xyz file", path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || n <= 0 {
		return nil, nil, fmt.Errorf("%s: bad atom count %q", path, sc.Text())
	}
	if !sc.Scan() {
		return nil, nil, fmt.Errorf("%s: missing comment line", path)
	}

	pos := make([]geom.Vec, 0, n)
	names := make([]string, 0, n)
	for len(pos) < n && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			return nil, nil, fmt.Errorf("%s: atom line %d has %d fields", path, len(pos)+1, len(fields))
		}
		var v geom.Vec
		for k := 0; k < 3; k++ {
			v[k], err = strconv.ParseFloat(fields[k+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: atom line %d: %w", path, len(pos)+1, err)
			}
		}
		names = append(names, fields[0])
		pos = append(pos, v)
	}
	if len(pos) != n {
		return nil, nil, fmt.Errorf("%s: header promises %d atoms, file has %d", path, n, len(pos))
	}
	return pos, names, sc.Err()
}

// WriteXYZ writes one XYZ frame. Names may be nil, in which case the fixed
// O-H-H water pattern is used.
func WriteXYZ(path, comment string, names []string, pos []geom.Vec) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d\n%s\n", len(pos), comment)
	for i, p := range pos {
		name := "O"
		switch {
		case names != nil:
			name = names[i]
		case i%3 != 0:
			name = "H"
		}
		fmt.Fprintf(w, "%-2s %14.8f %14.8f %14.8f\n", name, p[0], p[1], p[2])
	}
	return w.Flush()
}
