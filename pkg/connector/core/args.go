package core

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Args is a parsed connector argument string of the form
// "default,key=value,flag". The leading token is the default argument when
// it has no '='. Tokens without '=' are flags.
type Args struct {
	def    string
	values map[string]string
	keys   []string
}

// ParseArgs parses s. Keys are trimmed; values keep inner whitespace and may
// contain '='. Repeating a key is an error.
func ParseArgs(s string) (Args, error) {
	args := Args{values: make(map[string]string)}

	for i, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		key, value, hasValue := strings.Cut(tok, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return Args{}, memerrors.Newf(memerrors.ErrorTypeValidation,
				"empty key in connector argument %q", tok)
		}
		if i == 0 && !hasValue {
			args.def = key
		}
		if _, dup := args.values[key]; dup {
			return Args{}, memerrors.Newf(memerrors.ErrorTypeValidation,
				"duplicate connector argument %q", key)
		}
		args.values[key] = strings.TrimSpace(value)
		args.keys = append(args.keys, key)
	}

	return args, nil
}

// Default returns the leading positional argument.
func (a Args) Default() string { return a.def }

// Get returns the value for key.
func (a Args) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// GetOr returns the value for key or def.
func (a Args) GetOr(key, def string) string {
	if v, ok := a.values[key]; ok && v != "" {
		return v
	}
	return def
}

// Has reports whether key was given, with or without a value.
func (a Args) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Keys returns the keys in the order given.
func (a Args) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Bool returns a flag or boolean value. A bare flag is true.
func (a Args) Bool(key string) (bool, error) {
	v, ok := a.values[key]
	if !ok {
		return false, nil
	}
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid boolean for "+key)
	}
	return b, nil
}

// Size returns a size value such as "16M", or def when absent.
func (a Args) Size(key string, def uint64) (uint64, error) {
	v, ok := a.values[key]
	if !ok || v == "" {
		return def, nil
	}
	return address.ParseSize(v)
}

// Uint returns an unsigned integer value in any Go base, or def when absent.
func (a Args) Uint(key string, def uint64) (uint64, error) {
	v, ok := a.values[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid integer for "+key)
	}
	return n, nil
}
