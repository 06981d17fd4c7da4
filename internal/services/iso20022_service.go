package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payment status codes used in pacs.002 reports.
const (
	StatusAccepted       = "ACCP"
	StatusSettled        = "ACSC"
	StatusRejected       = "RJCT"
	pacs008MessageType   = "pacs.008.001.08"
	pacs002MessageType   = "pacs.002.001.08"
	settlementMethodClrg = "CLRG"
)

// SettlementSender delivers ISO 20022 messages to the payout rail.
type SettlementSender interface {
	Send(ctx context.Context, messageType, xmlDoc string) error
}

// LogSettlementSender logs outbound messages. Used until a rail is configured.
type LogSettlementSender struct {
	log *zap.Logger
}

func NewLogSettlementSender(log *zap.Logger) *LogSettlementSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSettlementSender{log: log.Named("settlement")}
}

func (s *LogSettlementSender) Send(_ context.Context, messageType, xmlDoc string) error {
	s.log.Info("settlement message", zap.String("type", messageType), zap.Int("bytes", len(xmlDoc)))
	return nil
}

// ISO20022Builder renders withdrawals as pacs messages from the platform's
// settlement account.
type ISO20022Builder struct {
	institutionBIC  string
	institutionName string
	now             func() time.Time
}

func NewISO20022Builder(bic, name string) *ISO20022Builder {
	return &ISO20022Builder{institutionBIC: bic, institutionName: name, now: time.Now}
}

// Pacs008 builds the credit transfer for a withdrawal. Amounts are minor units
// of a two-decimal currency.
func (b *ISO20022Builder) Pacs008(w *models.Withdrawal) *pacs_v08.FIToFICustomerCreditTransferV08 {
	msgID := uuid.New().String()
	created := b.now()
	settlementDate := created
	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(w.Currency),
		Value: minorToMajor(w.Amount),
	}

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(msgID),
			CreDtTm:           common.ISODateTime(created),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: settlementMethodClrg,
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    max35(w.ID),
					EndToEndId: common.Max35Text(truncate(w.IdempotencyKey, 35)),
					TxId:       max35(w.ID),
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(b.institutionBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: max140(b.institutionName),
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(w.BankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: max140(w.AccountName),
				},
			},
		},
	}
}

// Pacs002 builds the status report closing a withdrawal.
func (b *ISO20022Builder) Pacs002(w *models.Withdrawal, status string) *pacs_v08.FIToFIPaymentStatusReportV08 {
	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(b.now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    max35(w.ID),
				OrgnlEndToEndId: max35(truncate(w.IdempotencyKey, 35)),
				OrgnlTxId:       max35(w.ID),
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
}

// ConvertToXML converts ISO20022 document to XML string
func ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func minorToMajor(amount int64) float64 {
	return decimal.New(amount, -2).InexactFloat64()
}

func max35(s string) *common.Max35Text {
	v := common.Max35Text(truncate(s, 35))
	return &v
}

func max140(s string) *common.Max140Text {
	v := common.Max140Text(truncate(s, 140))
	return &v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
