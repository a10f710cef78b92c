package export

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Marshal 把命令序列编码为 protobuf（structpb.ListValue）
func Marshal(cmds []Command) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(cmds))}
	for i, c := range cmds {
		segments := make([]*structpb.Value, len(c.Address))
		for j, s := range c.Address {
			segments[j] = structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
				structpb.NewStringValue(s.Key),
				structpb.NewStringValue(s.Value),
			}})
		}
		params := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(c.Params))}
		for k, v := range c.Params {
			params.Fields[k] = structpb.NewStringValue(v)
		}
		list.Values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"op":      structpb.NewStringValue(c.Op),
			"address": structpb.NewListValue(&structpb.ListValue{Values: segments}),
			"params":  structpb.NewStructValue(params),
		}})
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("export: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal 解码 Marshal 的输出
func Unmarshal(data []byte) ([]Command, error) {
	list := new(structpb.ListValue)
	if err := proto.Unmarshal(data, list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	cmds := make([]Command, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("%w: entry %d is not a command", ErrInvalidEncoding, i)
		}
		c := Command{
			Op:     fields["op"].GetStringValue(),
			Params: make(map[string]string),
		}
		for _, seg := range fields["address"].GetListValue().GetValues() {
			pair := seg.GetListValue().GetValues()
			if len(pair) != 2 {
				return nil, fmt.Errorf("%w: entry %d has a malformed address", ErrInvalidEncoding, i)
			}
			c.Address = append(c.Address, Segment{Key: pair[0].GetStringValue(), Value: pair[1].GetStringValue()})
		}
		for k, pv := range fields["params"].GetStructValue().GetFields() {
			c.Params[k] = pv.GetStringValue()
		}
		cmds[i] = c
	}
	return cmds, nil
}
