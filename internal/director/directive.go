package director

import "fmt"

// directive is the per-item routing metadata carried in a transaction's
// input: which action handles it and where its output and stage
// transitions go. Only action is mandatory at parse time; empty next or
// failure stages become errors only when the outcome needs them.
type directive struct {
	action       string
	outputPath   string
	nextStage    string
	failureStage string
}

// parseDirective extracts the directive fields from a transaction's input
// object.
func parseDirective(input map[string]any) (*directive, error) {
	d := &directive{
		action:       stringField(input, "action"),
		outputPath:   stringField(input, "outputPath"),
		nextStage:    stringField(input, "nextStage"),
		failureStage: stringField(input, "failureStage"),
	}
	if d.action == "" {
		return nil, fmt.Errorf("Missing required field 'action' in transaction input")
	}
	return d, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
