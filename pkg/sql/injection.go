package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value that libinjection flagged.
type InjectionCheckResult struct {
	ParamName   string
	ParamValue  any
	Fingerprint string
}

// CheckParameterForInjection runs libinjection over a parameter value.
// Strings are checked directly. Slices, such as an [operator, value]
// condition or an IN list, are checked element by element. Other types
// cannot carry injection and return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	switch v := value.(type) {
	case string:
		if isSQLi, fingerprint := libinjection.IsSQLi(v); isSQLi {
			return &InjectionCheckResult{
				ParamName:   paramName,
				ParamValue:  value,
				Fingerprint: string(fingerprint),
			}
		}
	case []any:
		for _, elem := range v {
			if r := CheckParameterForInjection(paramName, elem); r != nil {
				return r
			}
		}
	case []string:
		for _, elem := range v {
			if r := CheckParameterForInjection(paramName, elem); r != nil {
				return r
			}
		}
	}
	return nil
}

// CheckAllParameters checks every parameter and returns the flagged ones
// sorted by parameter name.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ParamName < results[j].ParamName
	})
	return results
}
