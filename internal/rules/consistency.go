package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
)

type cstPair struct {
	pis    string
	cofins string
}

// evaluatePairs runs every consistency rule against every CST pair and
// returns the pairs at least one rule rejects, keyed to the rule id.
func evaluatePairs(rules []ConsistencyRule, csts map[string]PisCofinsRule) (map[cstPair]string, error) {
	inconsistent := make(map[cstPair]string)
	if len(rules) == 0 {
		return inconsistent, nil
	}

	compiled := make([][]byte, len(rules))
	for i, r := range rules {
		if len(r.Logic) == 0 {
			return nil, invalidPack("consistency rule %q has no logic", r.ID)
		}
		logic, err := json.Marshal(r.Logic)
		if err != nil {
			return nil, invalidPack("consistency rule %q: %v", r.ID, err)
		}
		if !jsonlogic.IsValid(bytes.NewReader(logic)) {
			return nil, invalidPack("consistency rule %q is not valid JsonLogic", r.ID)
		}
		compiled[i] = logic
	}

	for _, pis := range csts {
		for _, cofins := range csts {
			data, err := json.Marshal(map[string]any{
				"pis":    map[string]string{"cst": pis.CST, "situation": string(pis.Situation)},
				"cofins": map[string]string{"cst": cofins.CST, "situation": string(cofins.Situation)},
			})
			if err != nil {
				return nil, err
			}
			for i, logic := range compiled {
				ok, err := applyLogic(logic, data)
				if err != nil {
					return nil, invalidPack("consistency rule %q: %v", rules[i].ID, err)
				}
				if !ok {
					inconsistent[cstPair{pis.CST, cofins.CST}] = rules[i].ID
					break
				}
			}
		}
	}
	return inconsistent, nil
}

func applyLogic(logic, data []byte) (bool, error) {
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(logic), bytes.NewReader(data), &out); err != nil {
		return false, err
	}

	var result any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &result); err != nil {
		return false, fmt.Errorf("unexpected result %q: %w", out.String(), err)
	}
	return truthy(result), nil
}

// truthy follows JsonLogic truthiness
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	}
	return true
}
