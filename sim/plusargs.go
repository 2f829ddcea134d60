package sim

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PlusArg looks up a "+name=value" argument. A bare "+name" is reported as
// present with an empty value. The last occurrence wins.
func PlusArg(args []string, name string) (string, bool) {
	value, found := "", false

	for _, arg := range args {
		if !strings.HasPrefix(arg, "+") {
			continue
		}

		key, v, _ := strings.Cut(arg[1:], "=")
		if key == name {
			value, found = v, true
		}
	}

	return value, found
}

// PlusArgUint parses a numeric plusarg. Values can be written in any base
// accepted by strconv.ParseUint with base 0 (0x.., 0b.., 0o..). When the
// plusarg is absent, def is returned.
func PlusArgUint(args []string, name string, def uint64) (uint64, error) {
	s, ok := PlusArg(args, name)
	if !ok {
		return def, nil
	}

	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "plusarg +%s", name)
	}

	return v, nil
}
