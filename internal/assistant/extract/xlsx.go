package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxText renders every sheet of a workbook as tab-separated rows, each
// sheet prefixed with a header line so the analysis model can tell sheets
// apart.
func xlsxText(data []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("extract: open workbook: %w", err)
	}
	defer wb.Close()

	var sb strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("extract: read sheet %q: %w", sheet, err)
		}
		fmt.Fprintf(&sb, "--- Sheet: %s ---\n", sheet)
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
