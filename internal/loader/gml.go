package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/nvandessel/contagion/internal/graph"
)

// gmlValue is a parsed GML value: a number, a string, or a nested list.
type gmlValue struct {
	num    float64
	str    string
	list   []gmlPair
	isNum  bool
	isList bool
}

type gmlPair struct {
	key string
	val gmlValue
}

// ReadGML parses a GML document containing one directed graph. Nodes are
// keyed by their label when present, otherwise by their integer id. Edges
// refer to nodes by id.
func ReadGML(r io.Reader) (*graph.Graph, error) {
	p := &gmlParser{sc: newGMLScanner(r)}
	top, err := p.parseList(false)
	if err != nil {
		return nil, err
	}

	var body []gmlPair
	for _, kv := range top {
		if kv.key == "graph" && kv.val.isList {
			body = kv.val.list
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: no graph block", ErrSyntax)
	}

	directed := false
	for _, kv := range body {
		if kv.key == "directed" && kv.val.isNum {
			directed = kv.val.num != 0
		}
	}
	if !directed {
		return nil, ErrUndirected
	}

	b := graph.NewBuilder()
	byID := make(map[string]graph.NodeID)
	for _, kv := range body {
		if kv.key != "node" || !kv.val.isList {
			continue
		}
		rawID, ok := lookup(kv.val.list, "id")
		if !ok {
			return nil, fmt.Errorf("%w: node without id", ErrSyntax)
		}
		key := rawID.text()
		id := nodeIDFor(rawID)
		if label, ok := lookup(kv.val.list, "label"); ok {
			id = graph.StringID(label.text())
		}
		if _, dup := byID[key]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %s", ErrSyntax, key)
		}
		byID[key] = id
		b.AddNode(id)
	}

	for _, kv := range body {
		if kv.key != "edge" || !kv.val.isList {
			continue
		}
		src, ok1 := lookup(kv.val.list, "source")
		dst, ok2 := lookup(kv.val.list, "target")
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: edge without source or target", ErrSyntax)
		}
		from, ok1 := byID[src.text()]
		to, ok2 := byID[dst.text()]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: edge %s -> %s references an undeclared node", ErrSyntax, src.text(), dst.text())
		}
		b.AddEdge(from, to)
	}

	return b.Build(), nil
}

func lookup(list []gmlPair, key string) (gmlValue, bool) {
	for _, kv := range list {
		if kv.key == key {
			return kv.val, true
		}
	}
	return gmlValue{}, false
}

func (v gmlValue) text() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

func nodeIDFor(v gmlValue) graph.NodeID {
	if v.isNum && v.num == float64(int64(v.num)) {
		return graph.IntID(int64(v.num))
	}
	return graph.StringID(v.text())
}

type gmlToken struct {
	kind byte // 'k' key, 'n' number, 's' string, '[' or ']'
	text string
	line int
}

type gmlScanner struct {
	r    *bufio.Reader
	line int
	peek *gmlToken
}

func newGMLScanner(r io.Reader) *gmlScanner {
	return &gmlScanner{r: bufio.NewReader(r), line: 1}
}

func (s *gmlScanner) next() (*gmlToken, error) {
	if s.peek != nil {
		t := s.peek
		s.peek = nil
		return t, nil
	}
	for {
		c, _, err := s.r.ReadRune()
		if err != nil {
			return nil, err
		}
		switch {
		case c == '\n':
			s.line++
		case unicode.IsSpace(c):
		case c == '#':
			if _, err := s.r.ReadString('\n'); err != nil && err != io.EOF {
				return nil, err
			}
			s.line++
		case c == '[' || c == ']':
			return &gmlToken{kind: byte(c), line: s.line}, nil
		case c == '"':
			str, err := s.r.ReadString('"')
			if err != nil {
				return nil, fmt.Errorf("%w: unterminated string on line %d", ErrSyntax, s.line)
			}
			s.line += strings.Count(str, "\n")
			return &gmlToken{kind: 's', text: str[:len(str)-1], line: s.line}, nil
		default:
			var sb strings.Builder
			sb.WriteRune(c)
			for {
				c, _, err := s.r.ReadRune()
				if err == io.EOF {
					break
				}
				if err != nil {
					return nil, err
				}
				if unicode.IsSpace(c) || c == '[' || c == ']' || c == '"' || c == '#' {
					_ = s.r.UnreadRune()
					break
				}
				sb.WriteRune(c)
			}
			word := sb.String()
			kind := byte('k')
			if _, err := strconv.ParseFloat(word, 64); err == nil {
				kind = 'n'
			}
			return &gmlToken{kind: kind, text: word, line: s.line}, nil
		}
	}
}

type gmlParser struct {
	sc *gmlScanner
}

// parseList reads key/value pairs until EOF (top level) or a closing bracket.
func (p *gmlParser) parseList(nested bool) ([]gmlPair, error) {
	var out []gmlPair
	for {
		tok, err := p.sc.next()
		if err == io.EOF {
			if nested {
				return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
			}
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if tok.kind == ']' {
			if !nested {
				return nil, fmt.Errorf("%w: unbalanced ']' on line %d", ErrSyntax, tok.line)
			}
			return out, nil
		}
		if tok.kind != 'k' {
			return nil, fmt.Errorf("%w: expected key on line %d, got %q", ErrSyntax, tok.line, tok.text)
		}

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out = append(out, gmlPair{key: tok.text, val: val})
	}
}

func (p *gmlParser) parseValue() (gmlValue, error) {
	tok, err := p.sc.next()
	if err == io.EOF {
		return gmlValue{}, fmt.Errorf("%w: key without value", ErrSyntax)
	}
	if err != nil {
		return gmlValue{}, err
	}
	switch tok.kind {
	case 'n':
		f, _ := strconv.ParseFloat(tok.text, 64)
		return gmlValue{num: f, isNum: true}, nil
	case 's':
		return gmlValue{str: tok.text}, nil
	case '[':
		list, err := p.parseList(true)
		if err != nil {
			return gmlValue{}, err
		}
		return gmlValue{list: list, isList: true}, nil
	default:
		return gmlValue{}, fmt.Errorf("%w: unexpected %q on line %d", ErrSyntax, tok.text, tok.line)
	}
}
