package process

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ContainerDataDir is where the staging root is mounted inside docker containers.
const ContainerDataDir = "/data"

// TokenKind classifies an argument so it can be rendered per execution mode.
type TokenKind int

const (
	// TokenLiteral is emitted verbatim (flags, scalars).
	TokenLiteral TokenKind = iota
	// TokenStaged is a path relative to the staging root.
	TokenStaged
	// TokenInput is an input known both by its original host path and its staged location.
	TokenInput
	// TokenHostPath is a host path; inside docker it must live under the staging root.
	TokenHostPath
	// TokenDataDir is the staging root as the tool sees it.
	TokenDataDir
)

// Token is one typed element of a tool's argument list.
type Token struct {
	Kind  TokenKind
	Value string // literal value or host path
	Rel   string // slash-separated path relative to the staging root
}

// Flag emits a literal flag such as "-t".
func Flag(name string) Token { return Token{Kind: TokenLiteral, Value: name} }

// Value emits a scalar. Floats use the shortest representation ("28.5").
func Value(v any) Token {
	switch x := v.(type) {
	case float64:
		return Token{Kind: TokenLiteral, Value: strconv.FormatFloat(x, 'f', -1, 64)}
	case string:
		return Token{Kind: TokenLiteral, Value: x}
	default:
		return Token{Kind: TokenLiteral, Value: fmt.Sprint(x)}
	}
}

// Staged emits a path inside the staging root.
func Staged(rel string) Token { return Token{Kind: TokenStaged, Rel: filepath.ToSlash(rel)} }

// Input emits an input that was staged at rel from host.
// Docker sees the staged copy; the other modes see the original host path.
func Input(host, rel string) Token {
	return Token{Kind: TokenInput, Value: host, Rel: filepath.ToSlash(rel)}
}

// HostPath emits a host path.
func HostPath(p string) Token { return Token{Kind: TokenHostPath, Value: p} }

// DataDir emits the staging root.
func DataDir() Token { return Token{Kind: TokenDataDir} }

// Flags is a shorthand for literal tokens.
func Flags(values ...string) []Token {
	out := make([]Token, 0, len(values))
	for _, v := range values {
		out = append(out, Flag(v))
	}
	return out
}

func (t Token) render(mode Mode, root string) (string, error) {
	switch t.Kind {
	case TokenLiteral:
		return t.Value, nil
	case TokenDataDir:
		if mode == ModeDocker {
			return ContainerDataDir, nil
		}
		return root, nil
	case TokenStaged:
		if mode == ModeDocker {
			return path.Join(ContainerDataDir, t.Rel), nil
		}
		return filepath.Join(root, filepath.FromSlash(t.Rel)), nil
	case TokenInput:
		if mode == ModeDocker {
			return path.Join(ContainerDataDir, t.Rel), nil
		}
		return t.Value, nil
	case TokenHostPath:
		if mode != ModeDocker {
			return t.Value, nil
		}
		rel, err := filepath.Rel(root, t.Value)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("host path %s is outside the mounted staging root %s", t.Value, root)
		}
		return path.Join(ContainerDataDir, filepath.ToSlash(rel)), nil
	default:
		return "", fmt.Errorf("unknown token kind %d", t.Kind)
	}
}
