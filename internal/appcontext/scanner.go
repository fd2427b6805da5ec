package appcontext

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// ModelFileScanner turns the source of one model file into a Model.
// Implementations are best-effort: unrecognized text produces warnings,
// never errors. A nil Model means the file declares no class.
type ModelFileScanner interface {
	ScanModel(file string, src []byte) (*Model, []ParseWarning)
}

// RegexModelScanner scans model files line by line with regular
// expressions. It does not understand multi-line calls or metaprogramming.
type RegexModelScanner struct{}

var (
	classPattern       = regexp.MustCompile(`^\s*class\s+([A-Z][\w:]*)(?:\s*<\s*([A-Z][\w:]*))?`)
	modulePattern      = regexp.MustCompile(`^\s*module\s+[A-Z]`)
	validationPattern  = regexp.MustCompile(`^\s*(validates_with|validates_each|validates(?:_\w+_of)?|validate)\b\s*\(?\s*(.+?)\)?\s*$`)
	blockOpener        = regexp.MustCompile(`(?:^|\s+)do\s*(?:\|[^|]*\|)?$`)
	associationPattern = regexp.MustCompile(`^\s*(belongs_to|has_many|has_one|has_and_belongs_to_many)\s*\(?\s*:(\w+)\s*(?:,\s*(.+?))?\)?\s*$`)
	scopePattern       = regexp.MustCompile(`^\s*scope\s*\(?\s*:(\w+)\s*,\s*(.+?)\s*$`)
	attributeSymbol    = regexp.MustCompile(`^:(\w+[?!]?)$`)
	declarationKeyword = regexp.MustCompile(`^\s*(validates?\w*|belongs_to|has_many|has_one|has_and_belongs_to_many|scope)\b`)
)

// NewRegexModelScanner creates the default model scanner
func NewRegexModelScanner() *RegexModelScanner {
	return &RegexModelScanner{}
}

// ScanModel implements ModelFileScanner
func (s *RegexModelScanner) ScanModel(file string, src []byte) (*Model, []ParseWarning) {
	var (
		model    *Model
		warnings []ParseWarning
		isModule bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}

		if model == nil {
			if m := classPattern.FindStringSubmatch(line); m != nil {
				model = &Model{
					File:         file,
					ClassName:    m[1],
					Superclass:   m[2],
					Validations:  []Validation{},
					Associations: []Association{},
					Scopes:       []Scope{},
				}
				continue
			}
			if modulePattern.MatchString(line) {
				isModule = true
			}
			continue
		}

		if m := validationPattern.FindStringSubmatch(line); m != nil {
			model.Validations = append(model.Validations, parseValidation(m[1], blockOpener.ReplaceAllString(m[2], "")))
			continue
		}
		if m := associationPattern.FindStringSubmatch(line); m != nil {
			model.Associations = append(model.Associations, Association{
				Kind:    m[1],
				Name:    m[2],
				Options: strings.TrimSpace(m[3]),
			})
			continue
		}
		if m := scopePattern.FindStringSubmatch(line); m != nil {
			model.Scopes = append(model.Scopes, Scope{Name: m[1], Body: m[2]})
			continue
		}
		if m := declarationKeyword.FindStringSubmatch(line); m != nil {
			warnings = append(warnings, ParseWarning{
				File:    file,
				Line:    lineNo,
				Message: fmt.Sprintf("unrecognized %s declaration", m[1]),
			})
		}
	}

	if err := scanner.Err(); err != nil {
		warnings = append(warnings, ParseWarning{File: file, Line: lineNo, Message: fmt.Sprintf("stopped reading: %v", err)})
	}

	if model == nil && !isModule {
		warnings = append(warnings, ParseWarning{File: file, Message: "no class declaration found"})
	}
	return model, warnings
}

func parseValidation(kind, rest string) Validation {
	v := Validation{Kind: kind, Attributes: []string{}}

	var options []string
	for _, arg := range splitArgs(rest) {
		if m := attributeSymbol.FindStringSubmatch(arg); m != nil {
			v.Attributes = append(v.Attributes, m[1])
			continue
		}
		options = append(options, arg)
	}
	v.Options = strings.Join(options, ", ")
	return v
}
