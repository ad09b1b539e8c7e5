package models

import (
	"fmt"
	"strings"
)

type PlanStatus string

const (
	PlanActive   PlanStatus = "active"
	PlanInactive PlanStatus = "inactive"
	PlanDeleted  PlanStatus = "deleted"
)

func ParsePlanStatus(s string) (PlanStatus, error) {
	switch PlanStatus(s) {
	case PlanActive, PlanInactive, PlanDeleted:
		return PlanStatus(s), nil
	}
	return "", fmt.Errorf("unknown plan status %q", s)
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	// InstallmentOverdue is never written by the reconciler; see Installment.Classify.
	InstallmentOverdue InstallmentStatus = "overdue"
)

func ParseInstallmentStatus(s string) (InstallmentStatus, error) {
	switch InstallmentStatus(s) {
	case InstallmentPending, InstallmentPaid, InstallmentOverdue:
		return InstallmentStatus(s), nil
	}
	return "", fmt.Errorf("unknown installment status %q", s)
}

type PaymentStatus string

const (
	PaymentActive  PaymentStatus = "active"
	PaymentRetired PaymentStatus = "retired"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentActive, PaymentRetired:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// ParsePaymentMethod also accepts the spanish labels used by the back office sheets.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", "efectivo":
		return MethodCash, nil
	case "card", "tarjeta":
		return MethodCard, nil
	case "transfer", "transferencia":
		return MethodTransfer, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleTecnico    Role = "tecnico"
)

func (r Role) CanWrite() bool {
	return r == RoleSuperadmin || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSuperadmin, RoleAdmin, RoleTecnico:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
