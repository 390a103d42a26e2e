package decl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// errEmptySummary is returned when the summary lacks even the header line.
var errEmptySummary = errors.New("empty declaration summary")

// ParseSummary reads a declaration summary:
//
//	mainpkg
//	Function,10,20,Foo
//	Type,25,30,Bar
//
// The first non-blank line is the package label. Every later line is
// kind,start,end[,name] with 1-indexed inclusive bounds. Lines with fewer than
// three fields or non-numeric bounds are dropped.
func ParseSummary(path string, r io.Reader) (*FileIndex, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		pkg     string
		decls   []Declaration
		header  bool
		dropped int
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !header {
			pkg = line
			header = true
			continue
		}
		d, ok := parseLine(line)
		if !ok {
			dropped++
			log.Debug().Str("file", path).Str("line", line).Msg("decl: malformed summary line")
			continue
		}
		decls = append(decls, d)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if !header {
		return nil, &ParseError{Path: path, Err: errEmptySummary}
	}
	if dropped > 0 {
		log.Debug().Str("file", path).Int("dropped", dropped).Msg("decl: summary parsed with malformed lines")
	}
	return NewFileIndex(path, pkg, decls), nil
}

func parseLine(line string) (Declaration, bool) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) < 3 {
		return Declaration{}, false
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Declaration{}, false
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Declaration{}, false
	}
	d := Declaration{
		Kind:      Kind(strings.TrimSpace(parts[0])),
		StartLine: start - 1,
		EndLine:   end - 1,
	}
	if len(parts) == 4 {
		d.Name = strings.TrimSpace(parts[3])
	}
	return d, true
}

// WriteSummary writes idx in the format ParseSummary reads. The name field is
// always present, empty for anonymous declarations.
func WriteSummary(w io.Writer, idx *FileIndex) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, idx.Package)
	for _, d := range idx.Declarations {
		fmt.Fprintf(bw, "%s,%d,%d,%s\n", d.Kind, d.StartLine+1, d.EndLine+1, d.Name)
	}
	return bw.Flush()
}
