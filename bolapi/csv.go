package bolapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// offerReportHeader is the column layout the offer export must carry. Any
// deviation means the report format changed and rows cannot be trusted.
const offerReportHeader = "offerId,ean,conditionName,conditionCategory,conditionComment,bundlePricesPrice,fulfilmentDeliveryCode,stockAmount,onHoldByRetailer,fulfilmentType,mutationDateTime,referenceCode"

var ErrMalformedOfferReport = errors.New("offer export report is malformed")

func parseOfferReport(data []byte) ([]OfferReportRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOfferReport, err)
	}
	if len(records) == 0 {
		return nil, ErrMalformedOfferReport
	}
	if strings.Join(records[0], ",") != offerReportHeader {
		return nil, ErrMalformedOfferReport
	}

	expected := len(records[0])
	rows := make([]OfferReportRow, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != expected {
			return nil, ErrMalformedOfferReport
		}
		row := OfferReportRow{
			OfferId:        record[0],
			EAN:            record[1],
			ConditionName:  record[2],
			FulfilmentType: record[9],
			ReferenceCode:  record[11],
		}
		if record[5] != "" {
			price, err := decimal.NewFromString(record[5])
			if err != nil {
				return nil, fmt.Errorf("%w: bad price %q", ErrMalformedOfferReport, record[5])
			}
			row.BundlePrice = price
		}
		if record[7] != "" {
			amount, err := strconv.Atoi(record[7])
			if err != nil {
				return nil, fmt.Errorf("%w: bad stock %q", ErrMalformedOfferReport, record[7])
			}
			row.StockAmount = amount
		}
		row.OnHoldByRetailer = strings.EqualFold(record[8], "true")
		if record[10] != "" {
			if t, err := time.Parse(time.RFC3339, record[10]); err == nil {
				utc := t.UTC()
				row.MutationDateTime = &utc
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseInt64(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}
