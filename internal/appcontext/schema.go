package appcontext

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var (
	createTablePattern = regexp.MustCompile(`^\s*create_table\s+["':]?(\w+)["']?\s*(.*?)\s*do\s*\|\w+\|\s*$`)
	indexCallPattern   = regexp.MustCompile(`^\s*t\.index\s+(\[[^\]]*\]|["':]?\w+["']?)\s*(?:,\s*(.*))?$`)
	columnCallPattern  = regexp.MustCompile(`^\s*t\.column\s+["':]?(\w+)["']?\s*,\s*["':]?(\w+)["']?\s*(?:,\s*(.*))?$`)
	typedColumnPattern = regexp.MustCompile(`^\s*t\.(\w+)\s+["':]?(\w+)["']?\s*(?:,\s*(.*))?$`)
	timestampsPattern  = regexp.MustCompile(`^\s*t\.timestamps\b(?:\s+(.*))?$`)
	addIndexPattern    = regexp.MustCompile(`^\s*add_index\s+["':]?(\w+)["']?\s*,\s*(\[[^\]]*\]|["':]?\w+["']?)\s*(?:,\s*(.*))?$`)
	blockEndPattern    = regexp.MustCompile(`^\s*end\s*$`)
	primaryKeyTypeOpt  = regexp.MustCompile(`\bid:\s*:?["']?(\w+)["']?`)
)

// ignoredSchemaStatements are schema.rb lines with nothing to record
var ignoredSchemaStatements = regexp.MustCompile(`^\s*(ActiveRecord::Schema|enable_extension|add_foreign_key|create_enum|end\b|t\.check_constraint|execute\b)`)

// ParseSchema reads db/schema.rb into tables. Unknown statements are
// reported as warnings.
func ParseSchema(file string, src []byte) (map[string]Table, []ParseWarning) {
	var (
		tables   = make(map[string]Table)
		warnings []ParseWarning
		current  string
		inTable  bool
	)
	warn := func(line int, format string, args ...any) {
		warnings = append(warnings, ParseWarning{File: file, Line: line, Message: fmt.Sprintf(format, args...)})
	}

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}

		if inTable {
			if blockEndPattern.MatchString(line) {
				inTable = false
				continue
			}
			table := tables[current]
			if !parseTableLine(&table, line) {
				warn(lineNo, "unrecognized statement in create_table %q", current)
			}
			tables[current] = table
			continue
		}

		if m := createTablePattern.FindStringSubmatch(line); m != nil {
			current, inTable = m[1], true
			tables[current] = newTable(m[2])
			continue
		}
		if m := addIndexPattern.FindStringSubmatch(line); m != nil {
			table, ok := tables[m[1]]
			if !ok {
				warn(lineNo, "add_index for unknown table %q", m[1])
				continue
			}
			table.Indexes = append(table.Indexes, Index{
				Columns: parseNameList(m[2]),
				Options: parseOptions(splitArgs(m[3])),
			})
			tables[m[1]] = table
			continue
		}
		if ignoredSchemaStatements.MatchString(line) {
			continue
		}
		warn(lineNo, "unrecognized schema statement")
	}

	if err := scanner.Err(); err != nil {
		warn(lineNo, "stopped reading: %v", err)
	}
	if inTable {
		warn(lineNo, "create_table %q is never closed", current)
	}
	return tables, warnings
}

func newTable(options string) Table {
	t := Table{Columns: make(map[string]Column), Indexes: []Index{}}
	if strings.Contains(options, "id: false") || strings.Contains(options, ":id => false") {
		return t
	}
	pkType := "primary_key"
	if m := primaryKeyTypeOpt.FindStringSubmatch(options); m != nil {
		pkType = m[1]
	}
	t.Columns["id"] = Column{Type: pkType}
	return t
}

// parseTableLine applies one line of a create_table body, reporting
// whether it was understood
func parseTableLine(table *Table, line string) bool {
	if m := indexCallPattern.FindStringSubmatch(line); m != nil {
		table.Indexes = append(table.Indexes, Index{
			Columns: parseNameList(m[1]),
			Options: parseOptions(splitArgs(m[2])),
		})
		return true
	}
	if m := timestampsPattern.FindStringSubmatch(line); m != nil {
		opts := parseOptions(splitArgs(m[1]))
		table.Columns["created_at"] = Column{Type: "datetime", Options: opts}
		table.Columns["updated_at"] = Column{Type: "datetime", Options: opts}
		return true
	}
	if m := columnCallPattern.FindStringSubmatch(line); m != nil {
		table.Columns[m[1]] = Column{Type: m[2], Options: parseOptions(splitArgs(m[3]))}
		return true
	}
	if m := typedColumnPattern.FindStringSubmatch(line); m != nil {
		kind, name := m[1], m[2]
		opts := parseOptions(splitArgs(m[3]))
		if kind == "references" || kind == "belongs_to" {
			table.Columns[name+"_id"] = Column{Type: "bigint", Options: opts}
			return true
		}
		table.Columns[name] = Column{Type: kind, Options: opts}
		return true
	}
	return false
}
