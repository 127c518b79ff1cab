package config

import (
	"fmt"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":   gocv.ArucoDict4x4_50,
	"4x4_100":  gocv.ArucoDict4x4_100,
	"4x4_250":  gocv.ArucoDict4x4_250,
	"4x4_1000": gocv.ArucoDict4x4_1000,
	"5x5_50":   gocv.ArucoDict5x5_50,
	"5x5_100":  gocv.ArucoDict5x5_100,
	"5x5_250":  gocv.ArucoDict5x5_250,
	"5x5_1000": gocv.ArucoDict5x5_1000,
	"6x6_50":   gocv.ArucoDict6x6_50,
	"6x6_100":  gocv.ArucoDict6x6_100,
	"6x6_250":  gocv.ArucoDict6x6_250,
	"6x6_1000": gocv.ArucoDict6x6_1000,
}

// DictionaryByName maps names like "4x4_100" to a predefined dictionary.
func DictionaryByName(name string) (gocv.ArucoDictionaryCode, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "DICT_"))
	if d, ok := dictionaries[key]; ok {
		return d, nil
	}
	names := make([]string, 0, len(dictionaries))
	for n := range dictionaries {
		names = append(names, n)
	}
	sort.Strings(names)
	return 0, fmt.Errorf("unknown dictionary %q (known: %s)", name, strings.Join(names, ", "))
}
