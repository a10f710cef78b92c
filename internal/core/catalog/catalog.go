package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// QualifiedPrefix 协议层类型的完整包前缀
const QualifiedPrefix = "org.jgroups.protocols."

// Catalog 协议层类型目录
type Catalog struct {
	mu         sync.RWMutex
	types      map[string]*LayerType
	converters map[string]PropertyConverter
	texts      map[string]TextConverter
}

// New 创建目录，已包含内置属性转换器
func New() *Catalog {
	return &Catalog{
		types:      make(map[string]*LayerType),
		converters: builtinConverters(),
		texts:      make(map[string]TextConverter),
	}
}

// Register 注册协议层类型
//
// 父类型必须先注册。
func (c *Catalog) Register(t *LayerType) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("catalog: layer type without name")
	}
	name := strings.TrimPrefix(t.Name, QualifiedPrefix)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.types[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	if t.Parent != "" {
		if _, ok := c.types[t.Parent]; !ok {
			return fmt.Errorf("%w: parent %s of %s", ErrTypeNotFound, t.Parent, name)
		}
	}

	cp := *t
	cp.Name = name
	c.types[name] = &cp
	return nil
}

// MustRegister 注册协议层类型，失败时 panic（用于内置类型）
func (c *Catalog) MustRegister(types ...*LayerType) {
	for _, t := range types {
		if err := c.Register(t); err != nil {
			panic(err)
		}
	}
}

// RegisterConverter 注册属性转换器
func (c *Catalog) RegisterConverter(name string, fn PropertyConverter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.converters[name] = fn
}

// RegisterTextConverter 注册复合对象文本转换器
func (c *Catalog) RegisterTextConverter(name string, fn TextConverter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts[name] = fn
}

// Lookup 按名称查找协议层类型
//
// 容忍包前缀：org.jgroups.protocols.pbcast.GMS、pbcast.GMS、GMS 都解析到 pbcast.GMS。
// 不带前缀的短名匹配多个类型时视为未找到。
func (c *Catalog) Lookup(name string) (*LayerType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookupLocked(name)
}

func (c *Catalog) lookupLocked(name string) (*LayerType, error) {
	name = strings.TrimPrefix(name, QualifiedPrefix)
	if t, ok := c.types[name]; ok {
		return t, nil
	}

	short := ShortName(name)
	var found *LayerType
	for key, t := range c.types {
		if ShortName(key) != short {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s is ambiguous", ErrTypeNotFound, name)
		}
		found = t
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	return found, nil
}

// Canonical 返回类型的规范名称，未注册的名称原样返回
func (c *Catalog) Canonical(name string) string {
	t, err := c.Lookup(name)
	if err != nil {
		return name
	}
	return t.Name
}

// Chain 返回类型及其父类型链，从自身开始向外
func (c *Catalog) Chain(name string) ([]*LayerType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookupLocked(name)
	if err != nil {
		return nil, err
	}
	chain := []*LayerType{t}
	for t.Parent != "" {
		t = c.types[t.Parent]
		chain = append(chain, t)
	}
	return chain, nil
}

// Property 沿父类型链查找可配置属性
func (c *Catalog) Property(typeName, property string) (PropertySpec, error) {
	chain, err := c.Chain(typeName)
	if err != nil {
		return PropertySpec{}, err
	}
	for _, t := range chain {
		if spec, ok := t.Properties[property]; ok {
			return spec, nil
		}
	}
	return PropertySpec{}, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, chain[0].Name, property)
}

// Attribute 沿父类型链查找可读指标
func (c *Catalog) Attribute(typeName, attribute string) (AttributeSpec, error) {
	chain, err := c.Chain(typeName)
	if err != nil {
		return AttributeSpec{}, err
	}
	for _, t := range chain {
		if spec, ok := t.Attributes[attribute]; ok {
			return spec, nil
		}
	}
	return AttributeSpec{}, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, chain[0].Name, attribute)
}

// Attributes 返回类型及父类型上的所有指标名（排序）
func (c *Catalog) Attributes(typeName string) ([]string, error) {
	chain, err := c.Chain(typeName)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, t := range chain {
		for name := range t.Attributes {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Convert 用属性声明的转换器校验并规范化属性值
func (c *Catalog) Convert(typeName, property, raw string) (string, error) {
	spec, err := c.Property(typeName, property)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	fn, ok := c.converters[spec.Converter]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q for %s.%s", ErrConverterUnsupported, spec.Converter, typeName, property)
	}

	v, err := fn(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, typeName, property, err)
	}
	return v, nil
}

// Text 用指定文本转换器输出复合对象，转换器不存在或值为 nil 时返回 ok=false
func (c *Catalog) Text(converter string, v any) (string, bool) {
	if converter == "" || v == nil {
		return "", false
	}
	c.mu.RLock()
	fn, ok := c.texts[converter]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	return fn(v)
}

// Types 返回所有已注册类型名（排序）
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShortName 去掉包前缀后的类型短名
func ShortName(name string) string {
	name = strings.TrimPrefix(name, QualifiedPrefix)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
