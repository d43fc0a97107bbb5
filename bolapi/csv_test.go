package bolapi

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

const sampleReport = offerReportHeader + "\n" +
	"of-1,8712345678901,Nieuw,NEW,,19.99,24uurs-23,7,false,FBR,2026-02-01T10:30:00+01:00,SKU-100\n" +
	"of-2,8712345678902,Als nieuw,AS_NEW,kleine kras,4.50,1-8d,0,true,FBB,,\n"

func TestParseOfferReport(t *testing.T) {
	rows, err := parseOfferReport([]byte(sampleReport))
	if err != nil {
		t.Fatalf("parseOfferReport: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.OfferId != "of-1" || first.EAN != "8712345678901" || first.ReferenceCode != "SKU-100" {
		t.Fatalf("row 0 identifiers wrong: %+v", first)
	}
	if !first.BundlePrice.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("row 0 price = %s, want 19.99", first.BundlePrice)
	}
	if first.StockAmount != 7 || first.OnHoldByRetailer {
		t.Fatalf("row 0 stock/hold wrong: %+v", first)
	}
	if first.MutationDateTime == nil || first.MutationDateTime.Hour() != 9 {
		t.Fatalf("row 0 mutation time not normalised to UTC: %v", first.MutationDateTime)
	}

	second := rows[1]
	if !second.OnHoldByRetailer || second.StockAmount != 0 || second.MutationDateTime != nil {
		t.Fatalf("row 1 wrong: %+v", second)
	}
}

func TestParseOfferReportRejectsWrongHeader(t *testing.T) {
	report := "offerId,ean\nof-1,8712345678901\n"
	if _, err := parseOfferReport([]byte(report)); !errors.Is(err, ErrMalformedOfferReport) {
		t.Fatalf("err = %v, want ErrMalformedOfferReport", err)
	}
}

func TestParseOfferReportRejectsShortRow(t *testing.T) {
	report := offerReportHeader + "\nof-1,8712345678901\n"
	if _, err := parseOfferReport([]byte(report)); !errors.Is(err, ErrMalformedOfferReport) {
		t.Fatalf("err = %v, want ErrMalformedOfferReport", err)
	}
}

func TestParseOfferReportRejectsEmptyBody(t *testing.T) {
	if _, err := parseOfferReport(nil); !errors.Is(err, ErrMalformedOfferReport) {
		t.Fatalf("err = %v, want ErrMalformedOfferReport", err)
	}
}
