package store

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodeValue stores an event value as a protojson google.protobuf.Value.
// Values structpb cannot build directly (typed slices, structs) go through
// their JSON form first. A nil value is stored as NULL.
func encodeValue(v any) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	pv, err := structpb.NewValue(v)
	if err != nil {
		raw, jerr := json.Marshal(v)
		if jerr != nil {
			return nil, fmt.Errorf("marshal %T: %w", v, jerr)
		}
		pv = &structpb.Value{}
		if err := protojson.Unmarshal(raw, pv); err != nil {
			return nil, fmt.Errorf("convert %T: %w", v, err)
		}
	}

	out, err := protojson.Marshal(pv)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func decodeValue(s string) (any, error) {
	var pv structpb.Value
	if err := protojson.Unmarshal([]byte(s), &pv); err != nil {
		return nil, err
	}
	return pv.AsInterface(), nil
}
