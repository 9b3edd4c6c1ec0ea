package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/wgdzlh/segtile/log"
	"github.com/wgdzlh/segtile/utils"

	"go.uber.org/zap"
)

const (
	Background = 0

	headerLabel = "label"
	headerID    = "id"
)

var (
	ErrBadHeader = errors.New("catalog csv header must be label,id")
	ErrBadRow    = errors.New("malformed catalog row")
	ErrBadIds    = errors.New("catalog ids must be 1..K in label order")
)

type Entry struct {
	Label string
	ID    int
}

// 标签与类别编号的映射，编号按标签升序从1开始连续分配
type Catalog struct {
	entries []Entry
	ids     map[string]int
}

// Build assigns ids 1..K to the distinct non-empty labels in ascending
// lexicographic order. Empty labels stand for null and get no id.
func Build(labels []string) *Catalog {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		set[l] = struct{}{}
	}
	sorted := make([]string, 0, len(set))
	for l := range set {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)
	c := &Catalog{
		entries: make([]Entry, len(sorted)),
		ids:     make(map[string]int, len(sorted)),
	}
	for i, l := range sorted {
		c.entries[i] = Entry{Label: l, ID: i + 1}
		c.ids[l] = i + 1
	}
	return c
}

func (c *Catalog) ID(label string) (id int, ok bool) {
	id, ok = c.ids[label]
	return
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) WriteCSV(w io.Writer) (err error) {
	cw := csv.NewWriter(w)
	if err = cw.Write([]string{headerLabel, headerID}); err != nil {
		return
	}
	for _, e := range c.entries {
		if err = cw.Write([]string{e.Label, strconv.Itoa(e.ID)}); err != nil {
			return
		}
	}
	cw.Flush()
	return cw.Error()
}

// 写出类别表（先写临时文件再改名）
func (c *Catalog) Save(path string) (err error) {
	err = utils.WriteFileAtomic(path, func(f *os.File) error {
		return c.WriteCSV(f)
	})
	if err != nil {
		log.Error("Catalog:save failed", zap.String("path", path), zap.Error(err))
		return
	}
	log.Info("Catalog:saved", zap.String("path", path), zap.Int("classes", c.Len()))
	return
}

func ReadCSV(r io.Reader) (c *Catalog, err error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return
	}
	if len(rows) == 0 || len(rows[0]) != 2 || rows[0][0] != headerLabel || rows[0][1] != headerID {
		err = ErrBadHeader
		return
	}
	labels := make([]string, 0, len(rows)-1)
	ids := make([]int, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 2 || row[0] == "" {
			err = fmt.Errorf("%w at line %d", ErrBadRow, i+2)
			return
		}
		id, e := strconv.Atoi(row[1])
		if e != nil {
			err = fmt.Errorf("%w at line %d: %v", ErrBadRow, i+2, e)
			return
		}
		labels = append(labels, row[0])
		ids = append(ids, id)
	}
	c = Build(labels)
	if c.Len() != len(labels) {
		err = ErrBadIds
		return
	}
	for i, l := range labels {
		if id, _ := c.ID(l); id != ids[i] {
			err = ErrBadIds
			return
		}
	}
	return
}

// 读取已持久化的类别表
func Load(path string) (c *Catalog, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	return ReadCSV(f)
}
