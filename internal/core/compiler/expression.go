package compiler

import (
	"fmt"
	"os"
	"strings"
)

// Lookup 表达式键查找函数
type Lookup func(key string) (string, bool)

// EnvLookup 返回先查覆盖表、再查环境变量的查找函数
func EnvLookup(overrides map[string]string) Lookup {
	return func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}
}

// Expand 展开字符串中所有 ${...} 表达式
//
// 支持的形式:
//   - ${key}
//   - ${key:default}
//   - ${k1,k2:default}，按顺序取第一个存在的键
//
// 没有默认值且所有键都不存在时返回 ErrUnresolvedExpression。
func Expand(s string, lookup Lookup) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end += start

		b.WriteString(s[:start])
		v, err := evaluate(s[start+2:end], lookup)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
		s = s[end+1:]
	}
}

func evaluate(expr string, lookup Lookup) (string, error) {
	keys, def, hasDefault := strings.Cut(expr, ":")
	for _, key := range strings.Split(keys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if v, ok := lookup(key); ok {
			return v, nil
		}
	}
	if hasDefault {
		return def, nil
	}
	return "", fmt.Errorf("%w: ${%s}", ErrUnresolvedExpression, expr)
}
