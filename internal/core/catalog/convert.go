package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// builtinConverters 内置属性转换器
func builtinConverters() map[string]PropertyConverter {
	return map[string]PropertyConverter{
		"int8":     intConverter(8),
		"int16":    intConverter(16),
		"int32":    intConverter(32),
		"int64":    intConverter(64),
		"float32":  floatConverter(32),
		"float64":  floatConverter(64),
		"bool":     convertBool,
		"string":   func(raw string) (string, error) { return raw, nil },
		"list":     convertList,
		"duration": convertDuration,
	}
}

func intConverter(bits int) PropertyConverter {
	return func(raw string) (string, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, bits)
		if err != nil {
			return "", fmt.Errorf("%q is not an int%d", raw, bits)
		}
		return strconv.FormatInt(n, 10), nil
	}
}

func floatConverter(bits int) PropertyConverter {
	return func(raw string) (string, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), bits)
		if err != nil {
			return "", fmt.Errorf("%q is not a float%d", raw, bits)
		}
		return strconv.FormatFloat(f, 'g', -1, bits), nil
	}
}

func convertBool(raw string) (string, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%q is not a boolean", raw)
	}
	return strconv.FormatBool(b), nil
}

// convertList 逗号分隔列表，去除空白与空项
func convertList(raw string) (string, error) {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ","), nil
}

// convertDuration 接受 Go 时长格式或毫秒整数
func convertDuration(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms < 0 {
			return "", fmt.Errorf("%q is negative", raw)
		}
		return strconv.FormatInt(ms, 10), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return "", fmt.Errorf("%q is not a duration", raw)
	}
	return strconv.FormatInt(d.Milliseconds(), 10), nil
}
