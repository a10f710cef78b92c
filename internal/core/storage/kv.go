package storage

import (
	"encoding/json"
)

// KV 带前缀的键值视图
//
// 所有键自动加上前缀，遍历返回的键已去除前缀。
type KV struct {
	engine *Engine
	prefix []byte
}

// NewKV 创建带前缀的键值视图
func NewKV(eng *Engine, prefix []byte) *KV {
	return &KV{engine: eng, prefix: append([]byte(nil), prefix...)}
}

func (s *KV) key(k []byte) []byte {
	out := make([]byte, len(s.prefix)+len(k))
	copy(out, s.prefix)
	copy(out[len(s.prefix):], k)
	return out
}

// Get 读取
func (s *KV) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.key(key))
}

// Put 写入
func (s *KV) Put(key, value []byte) error {
	return s.engine.Put(s.key(key), value)
}

// Delete 删除
func (s *KV) Delete(key []byte) error {
	return s.engine.Delete(s.key(key))
}

// GetJSON 读取并反序列化 JSON
func (s *KV) GetJSON(key []byte, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化为 JSON 并写入
func (s *KV) PutJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// Scan 遍历视图内的全部键值
func (s *KV) Scan(fn func(key, value []byte) bool) error {
	return s.engine.Scan(s.prefix, func(key, value []byte) bool {
		return fn(key[len(s.prefix):], value)
	})
}

// Keys 返回视图内的全部键
func (s *KV) Keys() ([]string, error) {
	var keys []string
	err := s.Scan(func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	})
	return keys, err
}

// Sub 返回子前缀视图
func (s *KV) Sub(prefix []byte) *KV {
	return NewKV(s.engine, s.key(prefix))
}
