package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/entrhq/notepost/pkg/logging"
)

// Workbook columns, in order
const (
	ColumnTitle = iota + 1
	ColumnBody
	ColumnImages
	ColumnTags
	ColumnCategory
)

// firstDataRow skips the header row.
const firstDataRow = 2

// DefaultHeader is written when AppendTitles creates a workbook.
var DefaultHeader = []string{"标题", "内容", "图片路径", "标签", "分类"}

// Workbook is the planning spreadsheet. Each call opens the file, works on it,
// and closes it again.
type Workbook struct {
	path   string
	sheet  string
	logger *logging.Logger
}

// NewWorkbook returns a workbook at path. An empty sheet means the active sheet.
func NewWorkbook(path, sheet string, logger *logging.Logger) *Workbook {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Workbook{path: path, sheet: sheet, logger: logger}
}

// Path returns the workbook file path.
func (w *Workbook) Path() string {
	return w.path
}

func (w *Workbook) open() (*excelize.File, string, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open workbook %s: %w", w.path, err)
	}
	sheet := w.sheetName(f)
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, "", fmt.Errorf("sheet %q not found in %s", sheet, w.path)
	}
	return f, sheet, nil
}

func (w *Workbook) sheetName(f *excelize.File) string {
	if w.sheet != "" {
		return w.sheet
	}
	return f.GetSheetName(f.GetActiveSheetIndex())
}

// ReadAll returns the posts from the second row on. Rows without a title are skipped.
func (w *Workbook) ReadAll() ([]PostContent, error) {
	f, sheet, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	var posts []PostContent
	for i := firstDataRow - 1; i < len(rows); i++ {
		post := rowToPost(rows[i], i+1)
		if strings.TrimSpace(post.Title) == "" {
			if !isBlankRow(rows[i]) {
				w.logger.Warnf("Row %d has no title, skipping", i+1)
			}
			continue
		}
		posts = append(posts, post)
	}

	w.logger.Infof("Read %d posts from %s", len(posts), w.path)
	return posts, nil
}

func rowToPost(row []string, number int) PostContent {
	return PostContent{
		Title:      strings.TrimSpace(cell(row, ColumnTitle)),
		Body:       cell(row, ColumnBody),
		ImagePaths: splitList(cell(row, ColumnImages)),
		Tags:       splitList(cell(row, ColumnTags)),
		Category:   strings.TrimSpace(cell(row, ColumnCategory)),
		Row:        number,
	}
}

// cell returns the 1-based column of row, or "" past the end.
func cell(row []string, column int) string {
	if column-1 < len(row) {
		return row[column-1]
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// FillMissingBodies writes a generated body into every titled row whose body
// is blank and saves the workbook. It returns the number of rows filled.
func (w *Workbook) FillMissingBodies(ctx context.Context, gen BodyGenerator) (int, error) {
	f, sheet, err := w.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	filled := 0
	for i := firstDataRow - 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			break
		}
		title := strings.TrimSpace(cell(rows[i], ColumnTitle))
		if title == "" || strings.TrimSpace(cell(rows[i], ColumnBody)) != "" {
			continue
		}

		w.logger.Infof("Generating body for %q", title)
		body := gen.Generate(ctx, title)

		name, err := excelize.CoordinatesToCellName(ColumnBody, i+1)
		if err != nil {
			return filled, err
		}
		if err := f.SetCellValue(sheet, name, body); err != nil {
			return filled, fmt.Errorf("failed to write %s: %w", name, err)
		}
		filled++
	}

	if filled == 0 {
		return 0, ctx.Err()
	}
	if err := f.Save(); err != nil {
		return filled, fmt.Errorf("failed to save workbook: %w", err)
	}
	w.logger.Infof("Filled %d bodies in %s", filled, w.path)
	return filled, ctx.Err()
}

// BodyCheck is the body length of one row against the budget.
type BodyCheck struct {
	Row          int
	Title        string
	Length       int
	WithinBudget bool
}

// Preview is a summary of the workbook for a quick look.
type Preview struct {
	Sheet  string
	Header []string
	Rows   [][]string
	Total  int
	Bodies []BodyCheck
}

// Inspect returns the header, the first limit data rows, and the body length
// of every titled row measured in characters against budget.
func (w *Workbook) Inspect(limit, budget int) (*Preview, error) {
	f, sheet, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	preview := &Preview{Sheet: sheet}
	if len(rows) == 0 {
		return preview, nil
	}
	preview.Header = rows[0]

	for i := firstDataRow - 1; i < len(rows); i++ {
		if isBlankRow(rows[i]) {
			continue
		}
		preview.Total++
		if len(preview.Rows) < limit {
			preview.Rows = append(preview.Rows, rows[i])
		}

		title := strings.TrimSpace(cell(rows[i], ColumnTitle))
		body := cell(rows[i], ColumnBody)
		if title == "" || body == "" {
			continue
		}
		length := len([]rune(body))
		preview.Bodies = append(preview.Bodies, BodyCheck{
			Row:          i + 1,
			Title:        title,
			Length:       length,
			WithinBudget: length <= budget,
		})
	}
	return preview, nil
}

// AppendTitles adds one row per title after the last used row, creating the
// workbook with a header row if it does not exist.
func (w *Workbook) AppendTitles(titles []string) (int, error) {
	f, sheet, err := w.openOrCreate()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	next := len(rows) + 1
	added := 0
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		name, err := excelize.CoordinatesToCellName(ColumnTitle, next)
		if err != nil {
			return added, err
		}
		if err := f.SetCellValue(sheet, name, title); err != nil {
			return added, fmt.Errorf("failed to write %s: %w", name, err)
		}
		next++
		added++
	}

	if err := f.SaveAs(w.path); err != nil {
		return added, fmt.Errorf("failed to save workbook: %w", err)
	}
	w.logger.Infof("Added %d titles to %s", added, w.path)
	return added, nil
}

func (w *Workbook) openOrCreate() (*excelize.File, string, error) {
	if _, err := os.Stat(w.path); err == nil {
		return w.open()
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to stat workbook: %w", err)
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if w.sheet != "" && w.sheet != sheet {
		if err := f.SetSheetName(sheet, w.sheet); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("failed to name sheet: %w", err)
		}
		sheet = w.sheet
	}
	for i, h := range DefaultHeader {
		name, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, name, h); err != nil {
			f.Close()
			return nil, "", err
		}
	}
	return f, sheet, nil
}
