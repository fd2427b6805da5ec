package appcontext

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"

	rstrings "github.com/railsplan/railsplan/internal/util/strings"
)

var (
	drawPattern       = regexp.MustCompile(`^\s*[\w:.]+\.routes\.draw\s+do\b`)
	rootPattern       = regexp.MustCompile(`^\s*root\s*\(?\s*(?:to:\s*|:to\s*=>\s*)?["']([\w/]+)#(\w+)["']`)
	verbPattern       = regexp.MustCompile(`^\s*(get|post|put|patch|delete)\s*\(?\s*(["'][^"']*["']|:\w+)\s*(?:,?\s*(.*?))?\s*(\bdo\b.*)?$`)
	resourcesPattern  = regexp.MustCompile(`^\s*(resources|resource)\s*\(?\s*:(\w+)\s*(?:,\s*(.*?))?\s*(\bdo\b.*)?$`)
	namespacePattern  = regexp.MustCompile(`^\s*namespace\s*\(?\s*:(\w+)(.*?)\s*\bdo\b`)
	scopePathPattern  = regexp.MustCompile(`^\s*scope\s*\(?\s*(?:path:\s*)?["']/?([\w/:-]*)["'](.*?)\s*\bdo\b`)
	scopeOnlyModule   = regexp.MustCompile(`^\s*scope\s*\(?\s*module:\s*["':]?(\w+)["']?(.*?)\s*\bdo\b`)
	memberPattern     = regexp.MustCompile(`^\s*(member|collection)\s+do\b`)
	mountPattern      = regexp.MustCompile(`^\s*mount\s+([\w:]+(?:\.\w+)?)\s*(?:=>|,\s*at:)\s*["']([^"']+)["']`)
	toOptionPattern   = regexp.MustCompile(`(?:\bto:\s*|:to\s*=>\s*|=>\s*)["']([\w/]+)#(\w+)["']`)
	moduleOptPattern  = regexp.MustCompile(`\bmodule:\s*["':]?(\w+)`)
	controllerOptPat  = regexp.MustCompile(`\bcontroller:\s*["':]?([\w/]+)`)
	actionOptPattern  = regexp.MustCompile(`\baction:\s*["':]?(\w+)`)
	pathOptPattern    = regexp.MustCompile(`\bpath:\s*["']/?([\w/-]+)["']`)
	genericDoPattern  = regexp.MustCompile(`\bdo\s*(\|[^|]*\|)?\s*$`)
	routesEndPattern  = regexp.MustCompile(`^\s*end\s*$`)
	ignoredRouteLines = regexp.MustCompile(`^\s*(concern|concerns|draw|direct|resolve|devise_for|use_doorkeeper|extend|if|unless|else|elsif|health_check)\b`)
)

// restAction is one of the seven conventional resource actions
type restAction struct {
	verb     string
	suffix   string
	action   string
	singular bool
	plural   bool
}

var restActions = []restAction{
	{verb: "GET", suffix: "", action: "index", plural: true},
	{verb: "GET", suffix: "/new", action: "new", plural: true, singular: true},
	{verb: "POST", suffix: "", action: "create", plural: true, singular: true},
	{verb: "GET", suffix: "/:id", action: "show", plural: true},
	{verb: "GET", suffix: "/:id/edit", action: "edit", plural: true},
	{verb: "PATCH", suffix: "/:id", action: "update", plural: true},
	{verb: "PUT", suffix: "/:id", action: "update", plural: true},
	{verb: "DELETE", suffix: "/:id", action: "destroy", plural: true},
	{verb: "GET", suffix: "", action: "show", singular: true},
	{verb: "GET", suffix: "/edit", action: "edit", singular: true},
	{verb: "PATCH", suffix: "", action: "update", singular: true},
	{verb: "PUT", suffix: "", action: "update", singular: true},
	{verb: "DELETE", suffix: "", action: "destroy", singular: true},
}

// routeScope is the state introduced by a `do` block
type routeScope struct {
	path       string
	module     string
	controller string
	// memberPath is where member routes of the enclosing resource live
	memberPath string
}

type routeParser struct {
	file     string
	scopes   []routeScope
	routes   []Route
	warnings []ParseWarning
}

// ParseRoutes expands config/routes.rb into concrete routes
func ParseRoutes(file string, src []byte) ([]Route, []ParseWarning) {
	p := &routeParser{file: file, scopes: []routeScope{{}}}

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}
		p.parseLine(lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		p.warn(lineNo, "stopped reading: %v", err)
	}
	if p.routes == nil {
		p.routes = []Route{}
	}
	return p.routes, p.warnings
}

func (p *routeParser) warn(line int, format string, args ...any) {
	p.warnings = append(p.warnings, ParseWarning{File: p.file, Line: line, Message: fmt.Sprintf(format, args...)})
}

func (p *routeParser) current() routeScope {
	return p.scopes[len(p.scopes)-1]
}

func (p *routeParser) push(s routeScope) {
	p.scopes = append(p.scopes, s)
}

func (p *routeParser) parseLine(lineNo int, line string) {
	cur := p.current()

	switch {
	case routesEndPattern.MatchString(line):
		if len(p.scopes) > 1 {
			p.scopes = p.scopes[:len(p.scopes)-1]
		}

	case drawPattern.MatchString(line):
		p.push(cur)

	case rootPattern.MatchString(line):
		m := rootPattern.FindStringSubmatch(line)
		p.add("GET", joinPath(cur.path, ""), qualify(cur.module, m[1]), m[2])

	case resourcesPattern.MatchString(line):
		m := resourcesPattern.FindStringSubmatch(line)
		p.resources(m[1] == "resource", m[2], m[3], m[4] != "")

	case namespacePattern.MatchString(line):
		m := namespacePattern.FindStringSubmatch(line)
		next := cur
		next.path = joinPath(cur.path, m[1])
		if pm := pathOptPattern.FindStringSubmatch(m[2]); pm != nil {
			next.path = joinPath(cur.path, pm[1])
		}
		next.module = qualify(cur.module, m[1])
		next.controller, next.memberPath = "", ""
		p.push(next)

	case scopePathPattern.MatchString(line):
		m := scopePathPattern.FindStringSubmatch(line)
		next := cur
		next.path = joinPath(cur.path, m[1])
		if mm := moduleOptPattern.FindStringSubmatch(m[2]); mm != nil {
			next.module = qualify(cur.module, mm[1])
		}
		p.push(next)

	case scopeOnlyModule.MatchString(line):
		m := scopeOnlyModule.FindStringSubmatch(line)
		next := cur
		next.module = qualify(cur.module, m[1])
		p.push(next)

	case memberPattern.MatchString(line):
		m := memberPattern.FindStringSubmatch(line)
		next := cur
		if m[1] == "member" && cur.memberPath != "" {
			next.path = cur.memberPath
		} else if cur.memberPath != "" {
			next.path = strings.TrimSuffix(cur.memberPath, "/:id")
		}
		p.push(next)

	case verbPattern.MatchString(line):
		m := verbPattern.FindStringSubmatch(line)
		p.verb(lineNo, strings.ToUpper(m[1]), m[2], m[3])
		if m[4] != "" {
			p.push(cur)
		}

	case mountPattern.MatchString(line):
		m := mountPattern.FindStringSubmatch(line)
		p.add("MOUNT", joinPath(cur.path, m[2]), m[1], "")

	case ignoredRouteLines.MatchString(line):
		if genericDoPattern.MatchString(line) {
			p.push(cur)
		}

	case genericDoPattern.MatchString(line):
		p.push(cur)

	default:
		p.warn(lineNo, "unrecognized route declaration")
	}
}

func (p *routeParser) add(verb, routePath, controller, action string) {
	p.routes = append(p.routes, Route{Verb: verb, Path: routePath, Controller: controller, Action: action})
}

func (p *routeParser) verb(lineNo int, verb, target, rest string) {
	cur := p.current()

	name := unquote(target)
	routePath := joinPath(cur.path, name)

	if m := toOptionPattern.FindStringSubmatch(rest); m != nil {
		p.add(verb, routePath, qualify(cur.module, m[1]), m[2])
		return
	}

	controller := cur.controller
	if m := controllerOptPat.FindStringSubmatch(rest); m != nil {
		controller = qualify(cur.module, m[1])
	}
	action := name
	if m := actionOptPattern.FindStringSubmatch(rest); m != nil {
		action = m[1]
	}

	// `get "users/profile"` routes to users#profile
	if controller == "" {
		segments := strings.Split(strings.Trim(name, "/"), "/")
		if len(segments) < 2 {
			p.warn(lineNo, "cannot infer controller for %s %q", verb, name)
			return
		}
		controller = qualify(cur.module, strings.Join(segments[:len(segments)-1], "/"))
		action = segments[len(segments)-1]
	}
	p.add(verb, routePath, controller, strings.TrimPrefix(action, ":"))
}

func (p *routeParser) resources(singular bool, name, rest string, hasBlock bool) {
	cur := p.current()
	args := splitArgs(rest)
	opts := parseOptions(args)

	controller := name
	if singular {
		controller = rstrings.Pluralize(name)
	}
	if c, ok := opts["controller"]; ok {
		controller = c
	}
	controller = qualify(cur.module, controller)

	segment := name
	if pth, ok := opts["path"]; ok {
		segment = strings.Trim(pth, "/")
	}
	base := joinPath(cur.path, segment)

	allowed := actionFilter(rest)
	for _, ra := range restActions {
		if (singular && !ra.singular) || (!singular && !ra.plural) {
			continue
		}
		if !allowed(ra.action) {
			continue
		}
		p.add(ra.verb, base+ra.suffix, controller, ra.action)
	}

	if !hasBlock {
		return
	}
	next := cur
	next.controller = controller
	if singular {
		next.path = base
		next.memberPath = base
	} else {
		next.path = joinPath(base, ":"+rstrings.Singularize(name)+"_id")
		next.memberPath = base + "/:id"
	}
	p.push(next)
}

var (
	onlyPattern   = regexp.MustCompile(`\bonly:\s*(\[[^\]]*\]|:\w+|%i\[[^\]]*\])`)
	exceptPattern = regexp.MustCompile(`\bexcept:\s*(\[[^\]]*\]|:\w+|%i\[[^\]]*\])`)
)

// actionFilter honours only: and except: options
func actionFilter(rest string) func(string) bool {
	toSet := func(list string) map[string]bool {
		set := make(map[string]bool)
		if strings.HasPrefix(list, "%i[") {
			for _, f := range strings.Fields(strings.TrimSuffix(strings.TrimPrefix(list, "%i["), "]")) {
				set[f] = true
			}
			return set
		}
		for _, n := range parseNameList(list) {
			set[n] = true
		}
		return set
	}

	if m := onlyPattern.FindStringSubmatch(rest); m != nil {
		only := toSet(m[1])
		return func(a string) bool { return only[a] }
	}
	if m := exceptPattern.FindStringSubmatch(rest); m != nil {
		except := toSet(m[1])
		return func(a string) bool { return !except[a] }
	}
	return func(string) bool { return true }
}

func joinPath(prefix, segment string) string {
	return path.Join("/", prefix, segment)
}

func qualify(module, controller string) string {
	if module == "" || strings.HasPrefix(controller, "/") {
		return strings.TrimPrefix(controller, "/")
	}
	return module + "/" + controller
}
