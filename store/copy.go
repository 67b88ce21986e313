package store

// cloneParams returns an independent copy of a params map.
func cloneParams(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = deepCopyInterface(v)
	}
	return cp
}

// deepCopyInterface clones the mutable container types that JSON
// unmarshalling produces (map[string]interface{}, []interface{}).
// Strings, numbers, bools, and nil are immutable and returned as-is.
func deepCopyInterface(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(val))
		for k, v := range val {
			cp[k] = deepCopyInterface(v)
		}
		return cp
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, v := range val {
			cp[i] = deepCopyInterface(v)
		}
		return cp
	default:
		return v
	}
}

func copyMessage(m Message) Message {
	m.Metadata = cloneParams(m.Metadata)
	return m
}

func copyStep(s TimelineStep) TimelineStep {
	s.Metadata.Params = cloneParams(s.Metadata.Params)
	s.Metadata.Result = deepCopyInterface(s.Metadata.Result)
	return s
}

func copyAction(a ActionExecution) ActionExecution {
	a.Params = cloneParams(a.Params)
	a.Result = deepCopyInterface(a.Result)
	return a
}

func copyHitl(h *HitlRequest) *HitlRequest {
	if h == nil {
		return nil
	}
	cp := *h
	cp.Params = cloneParams(h.Params)
	if h.Confidence != nil {
		c := *h.Confidence
		cp.Confidence = &c
	}
	if h.EditableContent != nil {
		e := *h.EditableContent
		cp.EditableContent = &e
	}
	return &cp
}
