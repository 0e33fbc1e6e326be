package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-assets/internal/compiler"
)

// TokenKind classifies a lexed token.
type TokenKind int

// Token kinds.
const (
	TokenEOF     TokenKind = iota
	TokenString            // letter run, may contain '_'
	TokenInteger           // optional '-' and a digit run
	TokenFloat             // integer run, '.', digit run
	TokenSymbol            // any other single non-space character
)

// String returns the kind name.
func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "EOF"
	case TokenString:
		return "string"
	case TokenInteger:
		return "integer"
	case TokenFloat:
		return "float"
	case TokenSymbol:
		return "symbol"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// Token is one lexeme and the line it started on.
type Token struct {
	Kind TokenKind
	Text string
	Line int
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "end of file"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

// Lexer is a single-lookahead scanner for wavefront-style text. Whitespace
// and '#' line comments are skipped between tokens.
type Lexer struct {
	r    *bufio.Reader
	path string

	c    int // next raw byte, -1 at end of input
	line int // line of c

	tok      Token // current (peeked) token
	prevLine int   // line of the most recently consumed token

	sb  strings.Builder
	err error
}

// NewLexer starts scanning r. path is used in error messages only.
func NewLexer(r io.Reader, path string) *Lexer {
	lx := &Lexer{r: bufio.NewReader(r), path: path, line: 1}
	lx.advance()
	lx.fetch()
	return lx
}

// advance reads the next byte. Lines end with "\n", "\r\n" or a bare "\r".
func (lx *Lexer) advance() {
	prev := lx.c
	if prev == '\n' {
		lx.line++
	}
	b, err := lx.r.ReadByte()
	if err != nil {
		if err != io.EOF && lx.err == nil {
			lx.err = compiler.InputErrorf(lx.path, "read: %w", err)
		}
		lx.c = -1
		return
	}
	if prev == '\r' && b != '\n' {
		lx.line++
	}
	lx.c = int(b)
}

func isSpace(c int) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isLetter(c int) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c int) bool {
	return '0' <= c && c <= '9'
}

func (lx *Lexer) skipCommentsAndWhitespace() {
	for {
		for lx.c != -1 && isSpace(lx.c) {
			lx.advance()
		}
		if lx.c != '#' {
			return
		}
		for lx.c != -1 && lx.c != '\n' && lx.c != '\r' {
			lx.advance()
		}
	}
}

func (lx *Lexer) fetch() {
	lx.skipCommentsAndWhitespace()
	lx.sb.Reset()
	line := lx.line

	var kind TokenKind
	switch {
	case lx.c == -1:
		lx.tok = Token{Kind: TokenEOF, Line: line}
		return
	case isLetter(lx.c):
		kind = lx.lexString()
	case isDigit(lx.c):
		kind = lx.lexNumber()
	case lx.c == '-':
		lx.sb.WriteByte('-')
		lx.advance()
		if isDigit(lx.c) {
			kind = lx.lexNumber()
		} else {
			kind = TokenSymbol
		}
	default:
		lx.sb.WriteByte(byte(lx.c))
		lx.advance()
		kind = TokenSymbol
	}
	lx.tok = Token{Kind: kind, Text: lx.sb.String(), Line: line}
}

func (lx *Lexer) lexString() TokenKind {
	for isLetter(lx.c) || lx.c == '_' {
		lx.sb.WriteByte(byte(lx.c))
		lx.advance()
	}
	return TokenString
}

func (lx *Lexer) lexNumber() TokenKind {
	lx.digits()
	if lx.c != '.' {
		return TokenInteger
	}
	lx.sb.WriteByte('.')
	lx.advance()
	lx.digits()
	return TokenFloat
}

func (lx *Lexer) digits() {
	for isDigit(lx.c) {
		lx.sb.WriteByte(byte(lx.c))
		lx.advance()
	}
}

// Peek returns the current token without consuming it.
func (lx *Lexer) Peek() Token {
	return lx.tok
}

// Next consumes and returns the current token.
func (lx *Lexer) Next() Token {
	t := lx.tok
	if t.Kind != TokenEOF {
		lx.prevLine = t.Line
		lx.fetch()
	}
	return t
}

// Done reports whether all input has been consumed.
func (lx *Lexer) Done() bool {
	return lx.tok.Kind == TokenEOF
}

// OnSameLine reports whether the current token continues the line of the
// token consumed last.
func (lx *Lexer) OnSameLine() bool {
	return lx.tok.Kind != TokenEOF && lx.tok.Line == lx.prevLine
}

// Int consumes an integer token.
func (lx *Lexer) Int() (int, error) {
	t := lx.tok
	if t.Kind != TokenInteger {
		return 0, lx.errorf(t.Line, "expected integer, got %s", t)
	}
	v, err := strconv.Atoi(t.Text)
	if err != nil {
		return 0, lx.errorf(t.Line, "integer %q: %w", t.Text, err)
	}
	lx.Next()
	return v, nil
}

// Float consumes a float token. Integers are accepted as whole-number floats.
func (lx *Lexer) Float() (float32, error) {
	t := lx.tok
	if t.Kind != TokenFloat && t.Kind != TokenInteger {
		return 0, lx.errorf(t.Line, "expected float, got %s", t)
	}
	v, err := strconv.ParseFloat(t.Text, 32)
	if err != nil {
		return 0, lx.errorf(t.Line, "float %q: %w", t.Text, err)
	}
	lx.Next()
	return float32(v), nil
}

// AcceptSymbol consumes the current token if it is the symbol s.
func (lx *Lexer) AcceptSymbol(s string) bool {
	if lx.tok.Kind == TokenSymbol && lx.tok.Text == s {
		lx.Next()
		return true
	}
	return false
}

// ReadRestOfLine returns the current token concatenated with the raw bytes
// that follow it up to the line terminator, then resumes tokenizing on the
// next line. Used for names and paths that must not be split. Trailing
// blanks are trimmed. If the current token already belongs to a later line,
// nothing is consumed and "" is returned.
func (lx *Lexer) ReadRestOfLine() string {
	if !lx.OnSameLine() {
		return ""
	}
	lx.sb.Reset()
	lx.sb.WriteString(lx.tok.Text)
	for lx.c != -1 && lx.c != '\n' && lx.c != '\r' {
		lx.sb.WriteByte(byte(lx.c))
		lx.advance()
	}
	s := strings.TrimRight(lx.sb.String(), " \t")
	lx.fetch()
	return s
}

// SkipLine discards the remainder of the current line.
func (lx *Lexer) SkipLine() {
	lx.ReadRestOfLine()
}

// Err returns the first read error, if any.
func (lx *Lexer) Err() error {
	return lx.err
}

func (lx *Lexer) errorf(line int, format string, args ...any) error {
	return compiler.InputErrorf(lx.path, "line %d: %w", line, fmt.Errorf(format, args...))
}
