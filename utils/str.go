package utils

import (
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrBadIndexList = errors.New("invalid index list")
)

// 解析逗号分隔的正整数列表（如波段"3,2,1"或单元编号"7,12"），支持"a-b"区间
func ParsePositiveInts(s string) (rets []int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		a, e := strconv.Atoi(strings.TrimSpace(lo))
		if e != nil || a <= 0 {
			return nil, ErrBadIndexList
		}
		b := a
		if isRange {
			if b, e = strconv.Atoi(strings.TrimSpace(hi)); e != nil || b < a {
				return nil, ErrBadIndexList
			}
		}
		for i := a; i <= b; i++ {
			rets = append(rets, i)
		}
	}
	return
}

// 升序去重
func UniqInts(ids []int) []int {
	if len(ids) == 0 {
		return ids
	}
	out := append([]int(nil), ids...)
	sort.Ints(out)
	n := 1
	for _, v := range out[1:] {
		if v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func IntsToStr(ids []int, sep byte) string {
	var ret strings.Builder
	for i, id := range ids {
		if i > 0 {
			ret.WriteByte(sep)
		}
		ret.WriteString(strconv.Itoa(id))
	}
	return ret.String()
}

// GBK string 转 UTF-8
func GbkStrToUtf8(s string) (d string, e error) {
	reader := transform.NewReader(strings.NewReader(s), simplifiedchinese.GBK.NewDecoder())
	t, e := io.ReadAll(reader)
	if e != nil {
		return
	}
	d = string(t)
	return
}

// UTF-8 string 转 GBK
func Utf8StrToGbk(s string) (d string, e error) {
	reader := transform.NewReader(strings.NewReader(s), simplifiedchinese.GBK.NewEncoder())
	t, e := io.ReadAll(reader)
	if e != nil {
		return
	}
	d = string(t)
	return
}

func PurifyForUtf8(s string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "")
}

// 统一标签文本：去除首尾空白、非法字符，并做NFC规范化，避免同名标签因编码形式不同被拆成两类
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(PurifyForUtf8(s)))
}
