package metrics

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// DefaultCacheSize 默认的访问函数缓存条目数
const DefaultCacheSize = 256

// attrKey 缓存键：协议层实例的类型名与指标名
type attrKey struct {
	layer     string
	attribute string
}

// Bridge 指标桥接
type Bridge struct {
	catalog *catalog.Catalog
	cache   *lru.Cache[attrKey, catalog.AttributeSpec]
}

// NewBridge 创建指标桥接，size <= 0 时使用 DefaultCacheSize
func NewBridge(cat *catalog.Catalog, size int) (*Bridge, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[attrKey, catalog.AttributeSpec](size)
	if err != nil {
		return nil, fmt.Errorf("metrics: create cache: %w", err)
	}
	return &Bridge{catalog: cat, cache: cache}, nil
}

// ReadAttribute 读取通道中某个协议层的指标
//
// 协议层名容忍包前缀。通道为 nil、已关闭或不包含该层时返回 ErrLayerNotFound；
// 指标未声明时返回 ErrUnknownAttribute；值为 nil 或复合对象无法输出时返回 Undefined。
func (b *Bridge) ReadAttribute(ch pkgif.Channel, layer, attribute string) (Value, error) {
	p, err := findLayer(ch, layer)
	if err != nil {
		return Undefined, err
	}
	spec, err := b.resolve(p.Name(), attribute)
	if err != nil {
		return Undefined, err
	}
	v, ok := spec.Get(p)
	if !ok {
		return Undefined, nil
	}
	return normalize(b.catalog, spec, v), nil
}

// Result 单个指标的读取结果
type Result struct {
	Attribute string
	Value     Value
	Err       error
}

// ReadAttributes 读取同一协议层的多个指标，每个指标的错误互不影响
func (b *Bridge) ReadAttributes(ch pkgif.Channel, layer string, attributes ...string) ([]Result, error) {
	p, err := findLayer(ch, layer)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(attributes))
	for i, attr := range attributes {
		results[i].Attribute = attr
		spec, err := b.resolve(p.Name(), attr)
		if err != nil {
			results[i].Value, results[i].Err = Undefined, err
			continue
		}
		if v, ok := spec.Get(p); ok {
			results[i].Value = normalize(b.catalog, spec, v)
		}
	}
	return results, nil
}

// Attributes 列出协议层可读的全部指标名
func (b *Bridge) Attributes(ch pkgif.Channel, layer string) ([]string, error) {
	p, err := findLayer(ch, layer)
	if err != nil {
		return nil, err
	}
	return b.catalog.Attributes(p.Name())
}

// resolve 沿类型链查找指标声明，结果进入缓存
func (b *Bridge) resolve(layerType, attribute string) (catalog.AttributeSpec, error) {
	key := attrKey{layer: layerType, attribute: attribute}
	if spec, ok := b.cache.Get(key); ok {
		return spec, nil
	}
	spec, err := b.catalog.Attribute(layerType, attribute)
	if err != nil {
		return catalog.AttributeSpec{}, err
	}
	if spec.Get == nil {
		return catalog.AttributeSpec{}, fmt.Errorf("%w: %s.%s has no accessor", ErrUnknownAttribute, layerType, attribute)
	}
	b.cache.Add(key, spec)
	return spec, nil
}

func findLayer(ch pkgif.Channel, layer string) (pkgif.Protocol, error) {
	if ch == nil || !ch.IsOpen() {
		return nil, fmt.Errorf("%w: %s (channel not open)", ErrLayerNotFound, layer)
	}
	stack := ch.ProtocolStack()
	if stack == nil {
		return nil, fmt.Errorf("%w: %s (channel closed)", ErrLayerNotFound, layer)
	}
	p := stack.FindProtocol(layer)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, layer)
	}
	return p, nil
}
