// Command goese dumps the user tables of an ESE ("Jet Blue") database file
// to stdout: a thin, illustrative collaborator around the goese package,
// not part of the core parser contract (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/essdb/goese"
	"github.com/essdb/goese/codec"
	"github.com/essdb/goese/format"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("goese", flag.ContinueOnError)
	mode := fs.String("mode", "Parser", "engine to use: Parser, Api, or Both")
	table := fs.String("table", "", "restrict the dump to one table")
	schema := fs.Bool("schema", false, "print table/column schema instead of rows")

	if err := fs.Parse(args); err != nil {
		return -1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: goese [--mode Parser|Api|Both] [--table name] [--schema] <db_path>")
		return -1
	}
	dbPath := fs.Arg(0)

	switch *mode {
	case "Parser":
	case "Api", "Both":
		log.Printf("warning: --mode %s requested a native-engine comparison; goese has no native engine and runs Parser only", *mode)
	default:
		fmt.Fprintf(os.Stderr, "usage: --mode must be Parser, Api, or Both, got %q\n", *mode)
		return -1
	}

	h, err := goese.Open(dbPath)
	if err != nil {
		log.Printf("open %s: %v", dbPath, err)
		return 1
	}
	defer h.Close()

	tables := h.ListTables()
	if *table != "" {
		tables = []string{*table}
	} else {
		var user []string
		for _, name := range tables {
			if !strings.HasPrefix(name, "MSys") {
				user = append(user, name)
			}
		}
		tables = user
	}

	for _, name := range tables {
		cols, err := h.Columns(name)
		if err != nil {
			log.Printf("columns %s: %v", name, err)
			return 1
		}

		if *schema {
			printSchema(name, cols)
			continue
		}
		if err := dumpTable(h, name, cols); err != nil {
			log.Printf("dump %s: %v", name, err)
			return 1
		}
	}

	return 0
}

func printSchema(table string, cols []goese.ColumnInfo) {
	fmt.Printf("%s\n", table)
	for _, c := range cols {
		fmt.Printf("  %-24s id=%-5d type=%-12s max_bytes=%-4d codepage=%d\n", c.Name, c.ID, c.Type, c.MaxBytes, c.Codepage)
	}
}

func dumpTable(h *goese.Handle, table string, cols []goese.ColumnInfo) error {
	cur, err := h.OpenCursor(table)
	if err != nil {
		return err
	}
	defer h.CloseCursor(cur)

	fmt.Printf("== %s ==\n", table)

	ok, err := h.Move(cur, goese.MoveFirst())
	for ; ok; ok, err = h.Move(cur, goese.MoveNext()) {
		if err != nil {
			return err
		}
		printRow(h, cur, cols)
	}
	return err
}

func printRow(h *goese.Handle, cur int, cols []goese.ColumnInfo) {
	for i, c := range cols {
		if i > 0 {
			fmt.Print("\t")
		}
		raw, err := h.Get(cur, c.ID)
		if err != nil {
			fmt.Printf("%s=<error:%v>", c.Name, err)
			continue
		}
		if raw == nil {
			fmt.Printf("%s=NULL", c.Name)
			continue
		}
		fmt.Printf("%s=%s", c.Name, formatValue(raw, c))
	}
	fmt.Println()
}

// formatValue applies codec's best-effort typed decoders where the column
// type has an unambiguous decoding, falling back to a hex dump otherwise
// (SPEC_FULL.md §4 "ColumnType -> Go value decoding helpers").
func formatValue(raw []byte, c goese.ColumnInfo) string {
	switch c.Type {
	case format.ColTypeBit:
		v, err := codec.Bool(raw)
		if err == nil {
			return fmt.Sprintf("%v", v)
		}
	case format.ColTypeLong:
		v, err := codec.Int32(raw)
		if err == nil {
			return fmt.Sprintf("%d", v)
		}
	case format.ColTypeUnsignedLong:
		v, err := codec.UInt32(raw)
		if err == nil {
			return fmt.Sprintf("%d", v)
		}
	case format.ColTypeLongLong:
		v, err := codec.Int64(raw)
		if err == nil {
			return fmt.Sprintf("%d", v)
		}
	case format.ColTypeCurrency:
		v, err := codec.Currency(raw)
		if err == nil {
			return fmt.Sprintf("%.4f", v)
		}
	case format.ColTypeIEEEDouble:
		v, err := codec.Float64(raw)
		if err == nil {
			return fmt.Sprintf("%g", v)
		}
	case format.ColTypeDateTime:
		v, err := codec.DateTime(raw)
		if err == nil {
			return v.Format("2006-01-02T15:04:05")
		}
	case format.ColTypeGUID:
		v, err := codec.GUID(raw)
		if err == nil {
			return v.String()
		}
	case format.ColTypeText, format.ColTypeLongText:
		v, err := codec.Text(raw, c.Codepage)
		if err == nil {
			return v
		}
	}
	return fmt.Sprintf("%x", raw)
}
