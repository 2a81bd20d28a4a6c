package utils

import (
	"reflect"
	"strings"
)

var secretKeys = map[string]struct{}{
	"password": {}, "secret": {}, "token": {}, "github_token": {}, "access_token": {},
	"apikey": {}, "api_key": {}, "authorization": {}, "private_key": {},
}

func MaskSensitiveData(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// RedactString masks every occurrence of secret in s, e.g. a token embedded
// in a clone URL echoed back by git.
func RedactString(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, MaskSensitiveData(secret))
}

// RedactSecrets returns a copy of a string-keyed map tree with the values of
// credential-like keys replaced. Non-map values are returned unchanged.
func RedactSecrets(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if _, found := secretKeys[strings.ToLower(k)]; found {
				if s, ok := iter.Value().Interface().(string); ok && s == "" {
					out[k] = ""
				} else {
					out[k] = "[REDACTED]"
				}
				continue
			}
			out[k] = RedactSecrets(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.Interface && rv.Type().Elem().Kind() != reflect.Map {
			return v
		}
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = RedactSecrets(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}
