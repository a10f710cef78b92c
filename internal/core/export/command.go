package export

import (
	"fmt"
	"sort"
	"strings"
)

// 命令操作名
const (
	OpAdd         = "add"
	OpAddProtocol = "add-protocol"
)

// 地址段的键
const (
	KeyStack      = "stack"
	KeyTransport  = "transport"
	KeyProtocol   = "protocol"
	KeyRelay      = "relay"
	KeyRemoteSite = "remote-site"
	KeyProperty   = "property"
)

// Segment 资源地址的一段
type Segment struct {
	Key   string
	Value string
}

// Command 一条管理命令
type Command struct {
	Op      string
	Address []Segment
	Params  map[string]string
}

// String 返回 /stack=udp/transport=UDP:add(k=v,...) 形式
func (c Command) String() string {
	var b strings.Builder
	for _, s := range c.Address {
		fmt.Fprintf(&b, "/%s=%s", s.Key, s.Value)
	}
	b.WriteString(":")
	b.WriteString(c.Op)
	b.WriteString("(")
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s=%s", k, c.Params[k])
	}
	b.WriteString(")")
	return b.String()
}

// path 返回地址的键序列，如 "stack/transport/property"
func (c Command) path() string {
	keys := make([]string, len(c.Address))
	for i, s := range c.Address {
		keys[i] = s.Key
	}
	return strings.Join(keys, "/")
}

// value 返回第 i 段的值
func (c Command) value(i int) string {
	if i < len(c.Address) {
		return c.Address[i].Value
	}
	return ""
}

func address(pairs ...string) []Segment {
	out := make([]Segment, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Segment{Key: pairs[i], Value: pairs[i+1]})
	}
	return out
}
