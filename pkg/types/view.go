package types

import (
	"fmt"
	"strings"
)

// Address 组成员地址
type Address struct {
	// Name 逻辑名（通常为通道名或节点名）
	Name string

	// ID 唯一标识
	ID string
}

// String 返回 "name" 或 "name-id前缀" 形式
func (a Address) String() string {
	if a.ID == "" {
		return a.Name
	}
	id := a.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if a.Name == "" {
		return id
	}
	return a.Name + "-" + id
}

// IsZero 是否为空地址
func (a Address) IsZero() bool {
	return a.Name == "" && a.ID == ""
}

// View 组视图
//
// 第一个成员为协调者。
type View struct {
	ID      uint64
	Members []Address
}

// Coordinator 返回协调者地址
func (v *View) Coordinator() Address {
	if v == nil || len(v.Members) == 0 {
		return Address{}
	}
	return v.Members[0]
}

// Contains 是否包含成员
func (v *View) Contains(a Address) bool {
	if v == nil {
		return false
	}
	for _, m := range v.Members {
		if m == a {
			return true
		}
	}
	return false
}

// String 返回 "[coord|id] (n) [a, b]" 形式
func (v *View) String() string {
	if v == nil {
		return ""
	}
	members := make([]string, len(v.Members))
	for i, m := range v.Members {
		members[i] = m.String()
	}
	return fmt.Sprintf("[%s|%d] (%d) [%s]", v.Coordinator(), v.ID, len(v.Members), strings.Join(members, ", "))
}

// Message 组消息
type Message struct {
	// Src 发送方，由传输层填充
	Src Address

	// Dest 目标地址，零值表示组播
	Dest Address

	// Site 目标站点，非空时经中继层转发到远端站点
	Site string

	Payload []byte
}

// Size 返回负载字节数
func (m *Message) Size() int {
	return len(m.Payload)
}
