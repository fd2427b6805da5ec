package appcontext

import (
	"bufio"
	"bytes"
	"regexp"
)

var (
	defPattern        = regexp.MustCompile(`^\s*def\s+(\w+[?!]?)(?:[\s(;]|$)`)
	visibilityPattern = regexp.MustCompile(`^\s*(private|protected)\s*$`)
)

// ScanController extracts the class name and public actions of a
// controller. A nil result means no class was declared.
func ScanController(file string, src []byte) (*Controller, []ParseWarning) {
	var ctrl *Controller

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripComment(scanner.Text())

		if ctrl == nil {
			if m := classPattern.FindStringSubmatch(line); m != nil {
				ctrl = &Controller{File: file, ClassName: m[1], Actions: []string{}}
			}
			continue
		}
		if visibilityPattern.MatchString(line) {
			break
		}
		if m := defPattern.FindStringSubmatch(line); m != nil {
			ctrl.Actions = append(ctrl.Actions, m[1])
		}
	}

	if ctrl == nil {
		return nil, []ParseWarning{{File: file, Message: "no class declaration found"}}
	}
	return ctrl, nil
}
