// Package sqlstore 以關聯式資料庫 (MySQL / PostgreSQL，透過 GORM) 實作 TransactionalStore
//
// 所有資料放在同一張 ledger_items 表，(pk, sk) 為複合主鍵。
// ApplyAtomic 在單一資料庫交易內依序執行:
//   - Put: INSERT，主鍵重複即前置條件不成立
//   - Update: 帶條件的 UPDATE ... SET balance = balance + ?，符合筆數為 0 即前置條件不成立
//
// 條件與更新在同一個 UPDATE 敘述內，由資料庫的列鎖保證檢查與寫入之間不會被插隊。
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/pkg/database"
)

// sqlItem 對應資料庫的 ledger_items 表
type sqlItem struct {
	PK           string `gorm:"column:pk;primaryKey;size:160"`
	SK           string `gorm:"column:sk;primaryKey;size:160"`
	Type         string `gorm:"column:item_type;size:16;not null"`
	InsertedAt   int64  `gorm:"column:inserted_at"`
	Name         string `gorm:"column:name;size:128"`
	Denomination string `gorm:"column:denomination;size:5"`
	Balance      int64  `gorm:"column:balance"`
	AccountID    string `gorm:"column:account_id;size:128"`
	TransferID   string `gorm:"column:transfer_id;size:64"`
	Amount       int64  `gorm:"column:amount"`
	Credit       bool   `gorm:"column:credit"`
	Payload      []byte `gorm:"column:payload"`
	UpdatedAt    int64  `gorm:"column:updated_at;autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlItem) TableName() string {
	return "ledger_items"
}

// 條件屬性與欄位的白名單，只有這些欄位可以出現在 WHERE
var conditionColumns = map[store.Attribute]string{
	store.AttrBalance:      "balance",
	store.AttrDenomination: "denomination",
}

var conditionOperators = map[store.Operator]string{
	store.OpGreaterThan: ">",
	store.OpAtMost:      "<=",
	store.OpEqual:       "=",
}

// Store 是 TransactionalStore 的 SQL 實作
type Store struct {
	db *gorm.DB
}

// NewStore 建立 Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// mysqlTableOptions MySQL 建表時的預設定序，pk、sk 與 denomination 的比較必須區分大小寫
const mysqlTableOptions = " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=" + database.MySQLCollation

// collationColumns 需要逐位元組比較的欄位
var collationColumns = []string{"pk", "sk", "denomination"}

type columnCollation struct {
	ColumnName    string
	CollationName string
}

// Migrate 建立或更新 ledger_items 表結構
// MySQL 另外確認既有資料表的定序，AutoMigrate 不會修改已存在欄位的定序
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() != database.DriverMySQL {
		return db.AutoMigrate(&sqlItem{})
	}
	if err := db.Set("gorm:table_options", mysqlTableOptions).AutoMigrate(&sqlItem{}); err != nil {
		return err
	}
	return checkCollation(db)
}

func checkCollation(db *gorm.DB) error {
	var cols []columnCollation
	err := db.Raw(
		"SELECT COLUMN_NAME AS column_name, COLLATION_NAME AS collation_name FROM information_schema.COLUMNS "+
			"WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME IN ?",
		(&sqlItem{}).TableName(), collationColumns,
	).Scan(&cols).Error
	if err != nil {
		return fmt.Errorf("read column collation: %w", err)
	}
	for _, c := range cols {
		if c.CollationName != database.MySQLCollation {
			return fmt.Errorf("ledger_items.%s uses collation %q, want %q (ALTER TABLE ledger_items CONVERT TO CHARACTER SET utf8mb4 COLLATE %s)",
				c.ColumnName, c.CollationName, database.MySQLCollation, database.MySQLCollation)
		}
	}
	return nil
}

// ApplyAtomic 在單一資料庫交易內套用整組操作，任一操作失敗即 rollback
func (s *Store) ApplyAtomic(ctx context.Context, ops []store.Operation) error {
	if err := store.ValidateOperations(ops); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := applyOne(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	return translateError(ctx, err)
}

func applyOne(tx *gorm.DB, op store.Operation) error {
	switch o := op.(type) {
	case store.Put:
		row := fromItem(o.Item)
		if err := tx.Create(&row).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return fmt.Errorf("%w: %s/%s already exists", store.ErrPreconditionFailed, o.Item.PK, o.Item.SK)
			}
			return err
		}
		return nil
	case store.Update:
		q := tx.Model(&sqlItem{}).Where("pk = ? AND sk = ?", o.Key.PK, o.Key.SK)
		for _, p := range o.Condition {
			clause, err := predicateSQL(p)
			if err != nil {
				return err
			}
			q = q.Where(clause, p.Value)
		}
		res := q.Update("balance", gorm.Expr("balance + ?", o.BalanceDelta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s/%s", store.ErrPreconditionFailed, o.Key.PK, o.Key.SK)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported operation %T", store.ErrInvalidOperation, op)
	}
}

func predicateSQL(p store.Predicate) (string, error) {
	col, ok := conditionColumns[p.Attribute]
	if !ok {
		return "", fmt.Errorf("%w: unsupported attribute %q", store.ErrInvalidOperation, p.Attribute)
	}
	op, ok := conditionOperators[p.Operator]
	if !ok {
		return "", fmt.Errorf("%w: unsupported operator %q", store.ErrInvalidOperation, p.Operator)
	}
	return col + " " + op + " ?", nil
}

// Get 讀取單筆資料
func (s *Store) Get(ctx context.Context, key store.Key) (*store.Item, error) {
	var row sqlItem
	err := s.db.WithContext(ctx).Where("pk = ? AND sk = ?", key.PK, key.SK).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, translateError(ctx, err)
	}
	item := row.toItem()
	return &item, nil
}

// Query 讀取同一個 pk 下 sk 以 skPrefix 開頭的資料，依 sk 排序
func (s *Store) Query(ctx context.Context, pk string, skPrefix string) ([]store.Item, error) {
	var rows []sqlItem
	err := s.db.WithContext(ctx).
		Where("pk = ? AND sk LIKE ?", pk, escapeLike(skPrefix)+"%").
		Order("sk").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(ctx, err)
	}
	items := make([]store.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toItem())
	}
	return items, nil
}

// translateError 將資料庫錯誤轉成 store 的錯誤分類
func translateError(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrPreconditionFailed), errors.Is(err, store.ErrInvalidOperation):
		return err
	case database.IsOutOfRange(err):
		// 餘額超出 BIGINT 範圍，重試也不會成立
		return fmt.Errorf("%w: %w", store.ErrPreconditionFailed, err)
	case database.IsConflict(err):
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", store.ErrUnavailable, ctx.Err())
	default:
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func fromItem(it store.Item) sqlItem {
	return sqlItem{
		PK:           it.PK,
		SK:           it.SK,
		Type:         string(it.Type),
		InsertedAt:   it.InsertedAt,
		Name:         it.Name,
		Denomination: it.Denomination,
		Balance:      it.Balance,
		AccountID:    it.AccountID,
		TransferID:   it.TransferID,
		Amount:       it.Amount,
		Credit:       it.Credit,
		Payload:      it.Payload,
	}
}

func (r sqlItem) toItem() store.Item {
	return store.Item{
		Key:          store.Key{PK: r.PK, SK: r.SK},
		Type:         store.ItemType(r.Type),
		InsertedAt:   r.InsertedAt,
		Name:         r.Name,
		Denomination: r.Denomination,
		Balance:      r.Balance,
		AccountID:    r.AccountID,
		TransferID:   r.TransferID,
		Amount:       r.Amount,
		Credit:       r.Credit,
		Payload:      r.Payload,
	}
}
