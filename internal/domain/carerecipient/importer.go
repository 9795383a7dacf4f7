package carerecipient

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/platform/flash"
	"github.com/hans/hans/internal/platform/metrics"
)

// Import file column headers, compared case-insensitively.
const (
	ColProviderReference = "PROVIDER_REFERENCE"
	ColNHSNumber         = "NHS_NUMBER"
	ColBirthDate         = "BIRTH_DATE"
	ColFamilyName        = "FAMILY_NAME"
	ColGivenName         = "GIVEN_NAME"
)

// ImportColumns is the exact column set an import file must carry.
var ImportColumns = []string{ColProviderReference, ColNHSNumber, ColBirthDate, ColFamilyName, ColGivenName}

const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	zipMagic   = []byte("PK\x03\x04")
	xlsxSuffix = ".xlsx"
)

// 100000 is in the year 2173; larger numbers are not dates.
const maxExcelDateSerial = 100000

// RowError is the outcome of one rejected row.
type RowError struct {
	Row                 int    `json:"row"`
	ProviderReferenceID string `json:"provider_reference_id"`
	Severity            string `json:"severity"`
	Message             string `json:"message"`
	Err                 error  `json:"-"`
}

// Label identifies the row to staff: its provider reference and position.
func (e RowError) Label() string {
	if e.ProviderReferenceID == "" {
		return fmt.Sprintf("Row %d", e.Row)
	}
	return fmt.Sprintf("%s (row %d)", e.ProviderReferenceID, e.Row)
}

func (e RowError) String() string {
	return e.Label() + ": " + e.Message
}

// ImportResult summarises a completed import.
type ImportResult struct {
	Rows    int        `json:"rows"`
	Created int        `json:"created"`
	Errors  []RowError `json:"errors"`
}

// Lines renders the result as the summary line followed by one line per
// rejected row, in file order.
func (r *ImportResult) Lines() []string {
	lines := []string{importedMessage(r.Created)}
	for _, e := range r.Errors {
		lines = append(lines, e.String())
	}
	return lines
}

// Messages converts the result into console messages.
func (r *ImportResult) Messages() []flash.Message {
	msgs := []flash.Message{flash.New(flash.LevelInfo, importedMessage(r.Created))}
	for _, e := range r.Errors {
		level := flash.LevelError
		if e.Severity == SeverityWarning {
			level = flash.LevelWarning
		}
		msgs = append(msgs, flash.New(level, e.String()))
	}
	return msgs
}

// Importer reads a roster file and creates one care recipient per row.
type Importer struct {
	builder   *Builder
	locations LocationLookup
	maxLines  int
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewImporter(builder *Builder, locations LocationLookup, maxLines int, logger zerolog.Logger, m *metrics.Metrics) *Importer {
	return &Importer{builder: builder, locations: locations, maxLines: maxLines, logger: logger, metrics: m}
}

// Import processes the file for locationID. A structural problem with the
// file returns *ImportError and nothing is created. Otherwise every row is
// attempted and per-row failures are collected in the result.
func (im *Importer) Import(ctx context.Context, locationID uuid.UUID, filename string, file io.Reader) (*ImportResult, error) {
	records, err := im.prepare(ctx, locationID, filename, file)
	if err != nil {
		var ie *ImportError
		if errors.As(err, &ie) {
			im.metrics.ObserveImportRejected(ie.Kind.String())
			im.logger.Warn().Str("location_id", locationID.String()).Str("reason", ie.Kind.String()).Msg("import rejected")
		}
		return nil, err
	}

	result := &ImportResult{Rows: len(records)}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("import interrupted after %d of %d rows: %w", i, len(records), err)
		}
		if _, err := im.builder.Create(ctx, rec.input); err != nil {
			re := classifyRowError(rec.row, rec.input.ProviderReferenceID, err)
			result.Errors = append(result.Errors, re)
			im.observeRow(re)
			continue
		}
		result.Created++
		im.metrics.ObserveImportRow(metrics.OutcomeCreated)
	}

	im.logger.Info().
		Str("location_id", locationID.String()).
		Int("rows", result.Rows).
		Int("created", result.Created).
		Int("rejected", len(result.Errors)).
		Msg("import finished")
	return result, nil
}

func (im *Importer) observeRow(re RowError) {
	outcome := metrics.OutcomeInvalid
	if re.Severity == SeverityWarning {
		outcome = metrics.OutcomeAlreadyExists
	}
	im.metrics.ObserveImportRow(outcome)

	ev := im.logger.Warn()
	if re.Severity == SeverityError {
		ev = im.logger.Error()
	}
	ev.Int("row", re.Row).Str("provider_reference_id", re.ProviderReferenceID).Str("outcome", outcome).Msg("import row rejected")
}

func classifyRowError(row int, ref string, err error) RowError {
	re := RowError{Row: row, ProviderReferenceID: strings.TrimSpace(ref), Err: err}
	var dup *DuplicateIdentifierError
	var ve *ValidationError
	switch {
	case errors.As(err, &dup):
		re.Severity = SeverityWarning
		re.Message = dup.Error()
	case errors.Is(err, ErrAlreadyExists):
		re.Severity = SeverityWarning
		re.Message = "already exists"
	case errors.As(err, &ve):
		re.Severity = SeverityError
		re.Message = "validation failed: " + ve.Error()
	default:
		re.Severity = SeverityError
		re.Message = "could not be imported"
	}
	return re
}

// importRow is one non-blank data row. row is its 1-based position among
// the data rows of the file, blank rows included.
type importRow struct {
	row   int
	input Input
}

// prepare runs every whole-file check and returns the non-blank rows.
func (im *Importer) prepare(ctx context.Context, locationID uuid.UUID, filename string, file io.Reader) ([]importRow, error) {
	if file == nil {
		return nil, &ImportError{Kind: ImportMissingFile, Message: MsgInvalidOrEmptyFile}
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &ImportError{Kind: ImportCorruptFile, Message: MsgFileCorruptedOrBinary, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ImportError{Kind: ImportMissingFile, Message: MsgInvalidOrEmptyFile}
	}

	if _, err := im.locations.GetLocation(ctx, locationID); err != nil {
		if errors.Is(err, careprovider.ErrNotFound) {
			return nil, &ImportError{Kind: ImportUnknownLocation, Message: MsgUnknownLocation, Err: err}
		}
		return nil, fmt.Errorf("look up location: %w", err)
	}

	var rows [][]string
	if isSpreadsheet(filename, data) {
		rows, err = readSpreadsheet(data)
	} else {
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	index, ok := columnIndex(rows)
	if !ok {
		return nil, &ImportError{Kind: ImportInvalidColumns, Message: invalidColumnSetMessage()}
	}

	body := nonBlankRows(rows[1:])
	if im.maxLines > 0 && len(body) > im.maxLines {
		return nil, &ImportError{Kind: ImportTooManyLines, Message: lineCountExceededMessage(im.maxLines)}
	}

	records := make([]importRow, 0, len(body))
	for _, pos := range body {
		row := rows[pos+1]
		cell := func(col string) string {
			i := index[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		records = append(records, importRow{row: pos + 1, input: Input{
			ProviderReferenceID:    cell(ColProviderReference),
			GivenName:              cell(ColGivenName),
			FamilyName:             cell(ColFamilyName),
			NHSNumber:              cell(ColNHSNumber),
			BirthDate:              cell(ColBirthDate),
			CareProviderLocationID: locationID,
		}})
	}
	return records, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return nil, &ImportError{Kind: ImportCorruptFile, Message: MsgFileCorruptedOrBinary}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &ImportError{Kind: ImportCorruptFile, Message: MsgFileCorruptedOrBinary, Err: err}
	}
	return rows, nil
}

func isSpreadsheet(filename string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), xlsxSuffix) || bytes.HasPrefix(data, zipMagic)
}

// readSpreadsheet returns the rows of the first sheet. Birth dates stored as
// Excel date serials are rendered as YYYY-MM-DD.
func readSpreadsheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ImportError{Kind: ImportCorruptFile, Message: MsgFileCorruptedOrBinary, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ImportError{Kind: ImportMissingFile, Message: MsgInvalidOrEmptyFile}
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ImportError{Kind: ImportCorruptFile, Message: MsgFileCorruptedOrBinary, Err: err}
	}

	if index, ok := columnIndex(rows); ok {
		col := index[ColBirthDate]
		for _, row := range rows[1:] {
			if col < len(row) {
				row[col] = excelDate(row[col])
			}
		}
	}
	return rows, nil
}

func excelDate(v string) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || serial <= 0 || serial > maxExcelDateSerial {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return t.Format(BirthDateLayout)
}

// columnIndex maps each required column to its position. It fails unless the
// header holds exactly the required set, in any order and any case.
func columnIndex(rows [][]string) (map[string]int, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	header := rows[0]
	if len(header) != len(ImportColumns) {
		return nil, false
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[name]; dup {
			return nil, false
		}
		index[name] = i
	}
	for _, col := range ImportColumns {
		if _, ok := index[col]; !ok {
			return nil, false
		}
	}
	return index, true
}

// nonBlankRows returns the indexes of rows holding at least one non-empty
// cell.
func nonBlankRows(rows [][]string) []int {
	var out []int
	for i, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// ImportTemplate returns a workbook holding only the header row, with the
// identifier and date columns formatted as text so spreadsheet tools keep
// them verbatim.
func ImportTemplate() (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Care Recipients"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	textStyle, err := f.NewStyle(&excelize.Style{NumFmt: 49})
	if err != nil {
		return nil, fmt.Errorf("create text style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(ImportColumns))
	if err != nil {
		return nil, err
	}
	if err := f.SetColStyle(sheet, "A:"+lastCol, textStyle); err != nil {
		return nil, fmt.Errorf("set column style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	header := make([]interface{}, len(ImportColumns))
	for i, col := range ImportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}
