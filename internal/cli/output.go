package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/subset"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с явными потоками данных и сообщений.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// JSONMode возвращает true, если данные выводятся в JSON.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	_ = tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Tree выводит дерево результатов вычисления: по строке на узел,
// с числом истинных партиций и кандидатов.
//
//	marts/daily  1/3  All of
//	  3/3  Within latest time window
func (o *Output) Tree(root *condition.ResultSnapshot) {
	if root == nil {
		return
	}
	fmt.Fprintln(o.w, root.AssetKey)
	o.treeNode(root, root.AssetKey.String(), 1)
}

func (o *Output) treeNode(n *condition.ResultSnapshot, parentAsset string, depth int) {
	label := n.Description
	if asset := n.AssetKey.String(); asset != parentAsset {
		label = fmt.Sprintf("%s (%s)", label, asset)
	}
	if n.FromCache {
		label += " [cached]"
	}
	fmt.Fprintf(o.w, "%s%s/%s  %s\n",
		strings.Repeat("  ", depth),
		subsetSize(n.TrueSubset),
		subsetSize(n.Candidate),
		label,
	)
	for _, child := range n.Children {
		o.treeNode(child, n.AssetKey.String(), depth+1)
	}
}

// subsetSize возвращает размер сохранённого подмножества ("all" для компактной формы).
func subsetSize(s subset.Serialized) string {
	if s.All {
		return "all"
	}
	return strconv.Itoa(len(s.Keys))
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}
