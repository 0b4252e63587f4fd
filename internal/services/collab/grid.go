package collab

import "encoding/json"

// CellChange is one cell write inside a spreadsheet update.
type CellChange struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"   validate:"gte=0"`
	Col   int    `json:"col"   validate:"gte=0"`
	Value any    `json:"value"`
}

type gridSheet struct {
	Name string  `json:"name"`
	Data [][]any `json:"data"`
}

type gridData struct {
	Sheets []gridSheet `json:"sheets"`
}

const defaultSheetName = "Sheet1"

// applyCellChanges applies changes to a JSON grid, growing rows and
// columns as needed. An empty or invalid grid starts from a blank
// single-sheet layout. Last write per cell wins.
func applyCellChanges(content string, changes []CellChange) (string, error) {
	var grid gridData
	if content != "" {
		// Invalid staged payloads fall back to a fresh grid rather
		// than wedging every subsequent edit.
		_ = json.Unmarshal([]byte(content), &grid)
	}
	if len(grid.Sheets) == 0 {
		grid.Sheets = []gridSheet{{Name: defaultSheetName, Data: [][]any{}}}
	}

	for _, ch := range changes {
		if ch.Row < 0 || ch.Col < 0 {
			continue
		}
		sheet := findSheet(&grid, ch.Sheet)
		for len(sheet.Data) <= ch.Row {
			sheet.Data = append(sheet.Data, []any{})
		}
		for len(sheet.Data[ch.Row]) <= ch.Col {
			sheet.Data[ch.Row] = append(sheet.Data[ch.Row], nil)
		}
		sheet.Data[ch.Row][ch.Col] = ch.Value
	}

	out, err := json.Marshal(grid)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func findSheet(grid *gridData, name string) *gridSheet {
	if name == "" {
		return &grid.Sheets[0]
	}
	for i := range grid.Sheets {
		if grid.Sheets[i].Name == name {
			return &grid.Sheets[i]
		}
	}
	grid.Sheets = append(grid.Sheets, gridSheet{Name: name, Data: [][]any{}})
	return &grid.Sheets[len(grid.Sheets)-1]
}
