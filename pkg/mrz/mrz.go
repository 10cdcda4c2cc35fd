// Package mrz finds and validates ICAO 9303 machine readable zones in OCR output.
// It supports TD3 passports (2 lines of 44 characters) and TD1 ID cards (3 lines of 30 characters).
package mrz

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

type DocType string

const (
	Passport DocType = "PASSPORT"
	IDCard   DocType = "ID_CARD"
)

var (
	ErrNotFound       = errors.New("no machine readable zone found")
	ErrCheckDigit     = errors.New("check digit mismatch")
	ErrUnknownDocType = errors.New("unknown document type")
)

// ParseDocType accepts the names used on the wire, case insensitive.
func ParseDocType(s string) (DocType, error) {
	switch DocType(strings.ToUpper(strings.TrimSpace(s))) {
	case Passport:
		return Passport, nil
	case IDCard:
		return IDCard, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDocType, s)
}

// Info holds the fields of a validated machine readable zone. Dates are YYMMDD.
type Info struct {
	DocType        DocType  `json:"docType"`
	DocumentCode   string   `json:"documentCode"`
	IssuingState   string   `json:"issuingState"`
	DocumentNumber string   `json:"documentNumber"`
	Nationality    string   `json:"nationality"`
	BirthDate      string   `json:"birthDate"`
	Sex            string   `json:"sex"`
	ExpiryDate     string   `json:"expiryDate"`
	Surname        string   `json:"surname,omitempty"`
	GivenNames     string   `json:"givenNames,omitempty"`
	OptionalData   string   `json:"optionalData,omitempty"`
	Lines          []string `json:"lines"`
}

// String returns the zone as it is printed on the document.
func (i *Info) String() string {
	return strings.Join(i.Lines, "\n")
}

// The patterns are lookaheads so that overlapping candidates are all visited.
// OCR noise in front of the real zone often matches the first few characters.
var (
	td3Pattern = regexp2.MustCompile(
		`(?=(?<l1>P[A-Z0-9<][A-Z<]{3}[A-Z0-9<]{39})`+
			`(?<l2>[A-Z0-9<]{9}[0-9][A-Z<]{3}[0-9]{6}[0-9][MFX<][0-9]{6}[0-9][A-Z0-9<]{14}[0-9<][0-9]))`,
		regexp2.None)
	td1Pattern = regexp2.MustCompile(
		`(?=(?<l1>[ACI1][A-Z0-9<][A-Z<]{3}[A-Z0-9<]{25})`+
			`(?<l2>[0-9]{6}[0-9][MFX<][0-9]{6}[0-9][A-Z<]{3}[A-Z0-9<]{11}[0-9])`+
			`(?<l3>[A-Z<]{30})?)`,
		regexp2.None)
)

// Clean normalizes OCR output for matching: whitespace is dropped, letters are upper-cased,
// guillemets become fillers and everything else that cannot appear in a zone is removed.
func Clean(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		r = unicode.ToUpper(r)
		switch {
		case r == '«' || r == '‹':
			sb.WriteRune('<')
		case r == '<', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Parse searches text for a zone of the given document type and returns the first one
// whose check digits are valid. The error wraps [ErrNotFound] if nothing looks like a zone
// and [ErrCheckDigit] if every candidate failed validation.
func Parse(text string, docType DocType) (*Info, error) {
	var (
		re    *regexp2.Regexp
		build func(m *regexp2.Match) (*Info, error)
	)
	switch docType {
	case Passport:
		re, build = td3Pattern, parseTD3
	case IDCard:
		re, build = td1Pattern, parseTD1
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, docType)
	}
	buf := Clean(text)
	m, err := re.FindStringMatch(buf)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for m != nil {
		info, err := build(m)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if m, err = re.FindNextMatch(m); err != nil {
			return nil, err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNotFound
}

func group(m *regexp2.Match, name string) string {
	g := m.GroupByName(name)
	if g == nil {
		return ""
	}
	return g.String()
}

func parseTD3(m *regexp2.Match) (*Info, error) {
	l1, l2 := group(m, "l1"), group(m, "l2")
	if err := verify("document number", l2[0:9], l2[9]); err != nil {
		return nil, err
	}
	if err := verify("birth date", l2[13:19], l2[19]); err != nil {
		return nil, err
	}
	if err := verify("expiry date", l2[21:27], l2[27]); err != nil {
		return nil, err
	}
	optional := l2[28:42]
	// a filler is allowed in place of the check digit when there is no optional data
	if !(l2[42] == '<' && strings.Trim(optional, "<") == "") {
		if err := verify("optional data", optional, l2[42]); err != nil {
			return nil, err
		}
	}
	if err := verify("composite", l2[0:10]+l2[13:20]+l2[21:43], l2[43]); err != nil {
		return nil, err
	}
	surname, given := names(l1[5:])
	return &Info{
		DocType:        Passport,
		DocumentCode:   strings.TrimRight(l1[0:2], "<"),
		IssuingState:   strings.Trim(l1[2:5], "<"),
		DocumentNumber: strings.TrimRight(l2[0:9], "<"),
		Nationality:    strings.Trim(l2[10:13], "<"),
		BirthDate:      l2[13:19],
		Sex:            l2[20:21],
		ExpiryDate:     l2[21:27],
		Surname:        surname,
		GivenNames:     given,
		OptionalData:   strings.TrimRight(optional, "<"),
		Lines:          []string{l1, l2},
	}, nil
}

func parseTD1(m *regexp2.Match) (*Info, error) {
	l1, l2, l3 := group(m, "l1"), group(m, "l2"), group(m, "l3")
	// OCR reads the I of the document code as 1
	if l1[0] == '1' {
		l1 = "I" + l1[1:]
	}
	docNum := l1[5:14]
	if err := verify("document number", docNum, l1[14]); err != nil {
		// Some issuers put a letter O where OCR sees a zero. Only accept the fix if it validates.
		if docNum[3] != '0' {
			return nil, err
		}
		fixed := docNum[:3] + "O" + docNum[4:]
		if verify("document number", fixed, l1[14]) != nil {
			return nil, err
		}
		docNum = fixed
		l1 = l1[:5] + fixed + l1[14:]
	}
	if err := verify("birth date", l2[0:6], l2[6]); err != nil {
		return nil, err
	}
	if err := verify("expiry date", l2[8:14], l2[14]); err != nil {
		return nil, err
	}
	if err := verify("composite", l1[5:30]+l2[0:7]+l2[8:15]+l2[18:29], l2[29]); err != nil {
		return nil, err
	}
	info := &Info{
		DocType:        IDCard,
		DocumentCode:   strings.TrimRight(l1[0:2], "<"),
		IssuingState:   strings.Trim(l1[2:5], "<"),
		DocumentNumber: strings.TrimRight(docNum, "<"),
		OptionalData:   strings.TrimRight(l1[15:30], "<"),
		BirthDate:      l2[0:6],
		Sex:            l2[7:8],
		ExpiryDate:     l2[8:14],
		Nationality:    strings.Trim(l2[15:18], "<"),
		Lines:          []string{l1, l2},
	}
	if l3 != "" {
		info.Surname, info.GivenNames = names(l3)
		info.Lines = append(info.Lines, l3)
	}
	return info, nil
}

func verify(field, value string, check byte) error {
	want, err := CheckDigit(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCheckDigit, field, err)
	}
	if int(check)-'0' != want {
		return fmt.Errorf("%w: %s %q: got %c, want %d", ErrCheckDigit, field, value, check, want)
	}
	return nil
}

// names splits the name field into primary and secondary identifier.
func names(field string) (surname, given string) {
	field = strings.TrimRight(field, "<")
	surname, given, _ = strings.Cut(field, "<<")
	return strings.ReplaceAll(surname, "<", " "), strings.TrimSpace(strings.ReplaceAll(given, "<", " "))
}

var weights = [3]int{7, 3, 1}

// CheckDigit computes the ICAO 9303 check digit of s: characters are weighted 7, 3, 1 repeating,
// digits count as their value, A-Z as 10-35 and the filler < as 0.
func CheckDigit(s string) (int, error) {
	total := 0
	for i := 0; i < len(s); i++ {
		var v int
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c == '<':
			v = 0
		default:
			return 0, fmt.Errorf("invalid character %q at position %d", c, i)
		}
		total += v * weights[i%3]
	}
	return total % 10, nil
}
