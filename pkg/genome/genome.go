// Package genome encodes a turtle's visual traits as a compact tagged
// string so that rich trait data never crosses the wire. The format is
// B{0-3}-S{0-3}-P{0-2}-C{6 hex digits}, e.g. "B1-S1-P2-CFF00FF".
package genome

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	bodyNames  = []string{"plain", "mottled", "striped", "speckled"}
	shellNames = []string{"smooth", "spots", "rings", "hex"}
	limbNames  = []string{"stubby", "webbed", "fins"}
)

// genomePattern matches the full encoded form. Hex is case-insensitive.
var genomePattern = regexp.MustCompile(`^B([0-3])-S([0-3])-P([0-2])-C([0-9a-fA-F]{6})$`)

// Color is an RGB triple.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Traits is the decoded trait set for one turtle.
type Traits struct {
	Body  string
	Shell string
	Limb  string
	Color Color
}

// MalformedGenomeError indicates an encoded string that does not match the
// genome grammar. Callers are expected to treat the traits as unset and
// carry on.
type MalformedGenomeError struct {
	Value string
}

func (e *MalformedGenomeError) Error() string {
	return fmt.Sprintf("malformed genome string: %q", e.Value)
}

// Encode encodes a trait set into its wire form. Trait names are matched
// case-insensitively; an unknown name is an error.
func Encode(t Traits) (string, error) {
	body, err := indexOf(bodyNames, t.Body)
	if err != nil {
		return "", fmt.Errorf("invalid body trait: %v", err)
	}
	shell, err := indexOf(shellNames, t.Shell)
	if err != nil {
		return "", fmt.Errorf("invalid shell trait: %v", err)
	}
	limb, err := indexOf(limbNames, t.Limb)
	if err != nil {
		return "", fmt.Errorf("invalid limb trait: %v", err)
	}
	return fmt.Sprintf("B%d-S%d-P%d-C%02X%02X%02X", body, shell, limb, t.Color.R, t.Color.G, t.Color.B), nil
}

// Decode decodes a wire-form genome string. A malformed string yields
// zero-value traits and a MalformedGenomeError rather than a panic.
func Decode(s string) (Traits, error) {
	m := genomePattern.FindStringSubmatch(s)
	if m == nil {
		return Traits{}, &MalformedGenomeError{Value: s}
	}

	body, _ := strconv.Atoi(m[1])
	shell, _ := strconv.Atoi(m[2])
	limb, _ := strconv.Atoi(m[3])
	rgb, err := strconv.ParseUint(m[4], 16, 32)
	if err != nil {
		return Traits{}, &MalformedGenomeError{Value: s}
	}

	return Traits{
		Body:  bodyNames[body],
		Shell: shellNames[shell],
		Limb:  limbNames[limb],
		Color: Color{
			R: uint8(rgb >> 16),
			G: uint8(rgb >> 8),
			B: uint8(rgb),
		},
	}, nil
}

// BodyNames returns the closed set of body trait names in index order.
func BodyNames() []string {
	return append([]string{}, bodyNames...)
}

// ShellNames returns the closed set of shell trait names in index order.
func ShellNames() []string {
	return append([]string{}, shellNames...)
}

// LimbNames returns the closed set of limb trait names in index order.
func LimbNames() []string {
	return append([]string{}, limbNames...)
}

func indexOf(names []string, name string) (int, error) {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown trait name: %q", name)
}
