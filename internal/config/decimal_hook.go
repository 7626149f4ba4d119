package config

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// decodeHooks composes the decimal hook with mapstructure's own
// string-to-slice hook, so Markets can still be set as a comma-separated
// UPBIT_MARKETS env var.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		decimalHook(),
	)
}

// decimalHook teaches mapstructure how to decode a YAML/env string
// (or a numeric literal) into a decimal.Decimal, since mapstructure's
// built-in hooks don't know about shopspring/decimal.
func decimalHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) || from == to {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := data.(string)
			if s == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(s)
		case reflect.Float32, reflect.Float64:
			return decimal.NewFromFloat(reflect.ValueOf(data).Float()), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return decimal.NewFromInt(reflect.ValueOf(data).Int()), nil
		default:
			return nil, fmt.Errorf("config: cannot decode %s into decimal.Decimal", from)
		}
	}
}
