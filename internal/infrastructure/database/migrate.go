package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
)

// Models lists every table managed by this service.
func Models() []interface{} {
	return []interface{}{
		&model.Property{},
		&model.Booking{},
		&model.Payment{},
		&model.CommissionTransaction{},
		&model.Notification{},
		&model.StripeWebhookEvent{},
		&model.AuditLog{},
	}
}

type enumType struct {
	name   string
	values []string
}

var enumTypes = []enumType{
	{"payment_kind", []string{"booking_fee", "security_deposit", "rent", "sale"}},
	{"payment_status", []string{"pending", "completed", "failed"}},
	{"escrow_status", []string{"none", "escrowed", "released", "refunded"}},
	{"booking_status", []string{"pending", "confirmed", "payment_escrowed", "completed", "cancelled"}},
	{"property_category", []string{"short-stay", "rent", "sale"}},
	{"commission_status", []string{"pending", "completed", "failed", "refunded"}},
	{"webhook_status", []string{"pending", "processing", "completed", "failed"}},
}

// Migrate runs database migrations. On PostgreSQL it also creates the enum
// types, partial indexes, the escrow transition guard and the audit triggers.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	postgres := db.Dialector.Name() == "postgres"
	logger.Info("Running database migrations...", zap.String("dialect", db.Dialector.Name()))

	if postgres {
		if err := createCustomTypes(db); err != nil {
			logger.Error("Failed to create custom types", zap.Error(err))
			return err
		}
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if postgres {
		if err := createCustomIndexes(db); err != nil {
			logger.Error("Failed to create custom indexes", zap.Error(err))
			return err
		}
		if err := createDatabaseFunctions(db, logger); err != nil {
			logger.Error("Failed to create database functions", zap.Error(err))
			return err
		}
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

func createCustomTypes(db *gorm.DB) error {
	for _, enum := range enumTypes {
		var exists bool
		if err := db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = ?)`, enum.name).Scan(&exists).Error; err != nil {
			return err
		}
		if exists {
			continue
		}

		quoted := make([]string, len(enum.values))
		for i, v := range enum.values {
			quoted[i] = "'" + v + "'"
		}
		stmt := fmt.Sprintf(`CREATE TYPE %s AS ENUM (%s)`, enum.name, strings.Join(quoted, ", "))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create type %s: %w", enum.name, err)
		}
	}
	return nil
}

func createCustomIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_bookings_auto_release_due ON bookings (escrow_release_eligible_at)
			WHERE status = 'payment_escrowed' AND auto_release_scheduled = false`,
		`CREATE INDEX IF NOT EXISTS idx_payments_released ON payments (escrow_released_at)
			WHERE escrow_status = 'released'`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON stripe_webhook_events (created_at)
			WHERE status IN ('pending', 'failed')`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

const escrowGuardFunctionSQL = `
CREATE OR REPLACE FUNCTION guard_escrow_status() RETURNS TRIGGER AS $$
BEGIN
    IF NEW.escrow_status IS DISTINCT FROM OLD.escrow_status AND NOT (
        (OLD.escrow_status = 'none' AND NEW.escrow_status = 'escrowed') OR
        (OLD.escrow_status = 'escrowed' AND NEW.escrow_status IN ('released', 'refunded'))
    ) THEN
        RAISE EXCEPTION 'illegal escrow transition % -> % on payment %',
            OLD.escrow_status, NEW.escrow_status, OLD.id;
    END IF;

    IF NEW.escrow_status = 'released'
        AND (NEW.escrow_released_at IS NULL OR NEW.escrow_release_reason IS NULL) THEN
        RAISE EXCEPTION 'released payment % requires release timestamp and reason', NEW.id;
    END IF;

    RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

const auditFunctionSQL = `
CREATE OR REPLACE FUNCTION audit_table_changes() RETURNS TRIGGER AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        INSERT INTO audit_log (action, table_name, record_id, old_values, created_at)
        VALUES ('DELETE', TG_TABLE_NAME, to_jsonb(OLD)->>'id', to_jsonb(OLD), NOW());
        RETURN OLD;
    ELSIF TG_OP = 'UPDATE' THEN
        INSERT INTO audit_log (action, table_name, record_id, old_values, new_values, created_at)
        VALUES ('UPDATE', TG_TABLE_NAME, to_jsonb(NEW)->>'id', to_jsonb(OLD), to_jsonb(NEW), NOW());
        RETURN NEW;
    ELSIF TG_OP = 'INSERT' THEN
        INSERT INTO audit_log (action, table_name, record_id, new_values, created_at)
        VALUES ('INSERT', TG_TABLE_NAME, to_jsonb(NEW)->>'id', to_jsonb(NEW), NOW());
        RETURN NEW;
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;`

func createDatabaseFunctions(db *gorm.DB, logger *zap.Logger) error {
	if err := db.Exec(escrowGuardFunctionSQL).Error; err != nil {
		return fmt.Errorf("failed to create escrow guard function: %w", err)
	}
	if err := replaceTrigger(db, "guard_escrow_status", "payments",
		`BEFORE UPDATE OF escrow_status ON payments FOR EACH ROW EXECUTE FUNCTION guard_escrow_status()`); err != nil {
		return err
	}

	if err := db.Exec(auditFunctionSQL).Error; err != nil {
		return fmt.Errorf("failed to create audit function: %w", err)
	}
	for _, table := range []string{"payments", "bookings", "commission_transactions"} {
		name := "audit_" + table
		body := fmt.Sprintf(`AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION audit_table_changes()`, table)
		if err := replaceTrigger(db, name, table, body); err != nil {
			return err
		}
		logger.Debug("Audit trigger installed", zap.String("table", table))
	}
	return nil
}

func replaceTrigger(db *gorm.DB, name, table, body string) error {
	if err := db.Exec(fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, name, table)).Error; err != nil {
		return fmt.Errorf("failed to drop trigger %s: %w", name, err)
	}
	if err := db.Exec(fmt.Sprintf(`CREATE TRIGGER %s %s`, name, body)).Error; err != nil {
		return fmt.Errorf("failed to create trigger %s: %w", name, err)
	}
	return nil
}
