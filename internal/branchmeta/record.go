package branchmeta

// TodoItem is a single task attached to a branch.
type TodoItem struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt int64  `json:"created_at"`
}

// BranchRecord is the persisted metadata for one branch name.
type BranchRecord struct {
	CreatedAt   int64      `json:"created_at"`
	Owner       string     `json:"owner"`
	Status      Status     `json:"status"`
	Description string     `json:"description"`
	LastTouched int64      `json:"last_touched"`
	Todos       []TodoItem `json:"todos"`
}

// PendingTodos returns the incomplete todo items in insertion order.
func (record BranchRecord) PendingTodos() []TodoItem {
	pendingTodos := make([]TodoItem, 0, len(record.Todos))
	for _, todoItem := range record.Todos {
		if todoItem.Done {
			continue
		}
		pendingTodos = append(pendingTodos, todoItem)
	}
	return pendingTodos
}

func (record BranchRecord) clone() BranchRecord {
	duplicatedRecord := record
	duplicatedRecord.Todos = make([]TodoItem, len(record.Todos))
	copy(duplicatedRecord.Todos, record.Todos)
	return duplicatedRecord
}

func (record BranchRecord) nextTodoID(nowMilliseconds int64) int64 {
	nextIdentifier := nowMilliseconds
	for _, todoItem := range record.Todos {
		if todoItem.ID >= nextIdentifier {
			nextIdentifier = todoItem.ID + 1
		}
	}
	return nextIdentifier
}
