package hdkey

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// HardenedOffset is added to a segment index for hardened derivation.
const HardenedOffset uint32 = 0x80000000

// IndexPlaceholder marks the path segment that varies per wallet in a batch.
const IndexPlaceholder = "{index}"

// DefaultPathTemplate varies the (non-hardened) address index: m/44'/60'/0'/0/i.
const DefaultPathTemplate = "m/44'/60'/0'/0/" + IndexPlaceholder

// AccountPathTemplate varies the hardened account: m/44'/60'/i'/0/0.
const AccountPathTemplate = "m/44'/60'/" + IndexPlaceholder + "'/0/0"

var ErrInvalidDerivationPath = errors.New("invalid derivation path")

var pathExpr = regexp.MustCompile(`^m(/\d+'?)*$`)

// Path is a parsed BIP-32 derivation path.
type Path accounts.DerivationPath

// ParsePath validates the textual form (m(/\d+'?)*) and converts it.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if !pathExpr.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDerivationPath, s)
	}
	if s == "m" {
		return Path{}, nil
	}
	for _, seg := range strings.Split(s, "/")[1:] {
		digits := strings.TrimSuffix(seg, "'")
		// the parser below reads a leading 0 as octal
		if len(digits) > 1 && digits[0] == '0' {
			return nil, fmt.Errorf("%w: %q: leading zero in segment %q", ErrInvalidDerivationPath, s, seg)
		}
		v, err := strconv.ParseUint(digits, 10, 32)
		if err != nil || uint32(v) >= HardenedOffset {
			return nil, fmt.Errorf("%w: %q: segment %q out of range [0, %d]", ErrInvalidDerivationPath, s, seg, HardenedOffset-1)
		}
	}
	parsed, err := hdwallet.ParseDerivationPath(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDerivationPath, s, err)
	}
	return Path(parsed), nil
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, seg := range p {
		b.WriteString("/")
		if seg >= HardenedOffset {
			b.WriteString(strconv.FormatUint(uint64(seg-HardenedOffset), 10))
			b.WriteString("'")
		} else {
			b.WriteString(strconv.FormatUint(uint64(seg), 10))
		}
	}
	return b.String()
}

// Template is a derivation path with at most one {index} segment.
type Template struct {
	raw      string
	segment  int // position of the varying segment, -1 if fixed
	hardened bool
}

// ParseTemplate checks that tmpl yields a valid path for index 0 and that
// the placeholder occupies a whole segment.
func ParseTemplate(tmpl string) (Template, error) {
	tmpl = strings.TrimSpace(tmpl)
	if n := strings.Count(tmpl, IndexPlaceholder); n > 1 {
		return Template{}, fmt.Errorf("%w: %q has %d %s placeholders", ErrInvalidDerivationPath, tmpl, n, IndexPlaceholder)
	}
	t := Template{raw: tmpl, segment: -1}
	for i, seg := range strings.Split(tmpl, "/") {
		if !strings.Contains(seg, IndexPlaceholder) {
			continue
		}
		switch seg {
		case IndexPlaceholder:
		case IndexPlaceholder + "'":
			t.hardened = true
		default:
			return Template{}, fmt.Errorf("%w: %q: placeholder must be a whole segment", ErrInvalidDerivationPath, tmpl)
		}
		t.segment = i - 1 // segment 0 is "m"
	}
	if _, err := ParsePath(t.Render(0)); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Varies reports whether the template contains the {index} placeholder.
func (t Template) Varies() bool { return t.segment >= 0 }

// Segment returns the zero-based position of the varying segment after "m", or -1.
func (t Template) Segment() int { return t.segment }

// Hardened reports whether the varying segment is hardened.
func (t Template) Hardened() bool { return t.hardened }

func (t Template) String() string { return t.raw }

// Render substitutes index into the template.
func (t Template) Render(index int) string {
	return strings.Replace(t.raw, IndexPlaceholder, strconv.Itoa(index), 1)
}
