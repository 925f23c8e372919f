package components

// TaskEntry is one task line.
type TaskEntry struct {
	ID      string
	Message string
}

// TaskList keeps task lines in first-seen order.
type TaskList struct {
	order    []string
	messages map[string]string
}

// NewTaskList returns a list seeded with ids.
func NewTaskList(ids ...string) TaskList {
	l := TaskList{messages: make(map[string]string)}
	for _, id := range ids {
		l = l.Set(id, "")
	}
	return l
}

// Set records the latest message for id, adding it when unseen.
func (l TaskList) Set(id, message string) TaskList {
	if id == "" {
		return l
	}
	messages := make(map[string]string, len(l.messages)+1)
	for k, v := range l.messages {
		messages[k] = v
	}
	order := l.order
	if _, ok := messages[id]; !ok {
		order = append(append([]string(nil), l.order...), id)
	}
	messages[id] = message
	return TaskList{order: order, messages: messages}
}

// Len returns the number of tasks.
func (l TaskList) Len() int { return len(l.order) }

// Entries returns the ordered entries.
func (l TaskList) Entries() []TaskEntry {
	entries := make([]TaskEntry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, TaskEntry{ID: id, Message: l.messages[id]})
	}
	return entries
}
