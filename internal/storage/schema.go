package storage

import (
	"context"
	"fmt"
)

// DDL for the four logical tables.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS draws (
		issue          CHAR(7)     NOT NULL,
		open_time      DATETIME    NOT NULL,
		open_nums      CHAR(5)     NOT NULL,
		sum            TINYINT     NOT NULL,
		source         VARCHAR(64) NOT NULL DEFAULT '',
		is_big         TINYINT(1)  NOT NULL,
		is_small       TINYINT(1)  NOT NULL,
		is_odd         TINYINT(1)  NOT NULL,
		is_even        TINYINT(1)  NOT NULL,
		is_extreme_big   TINYINT(1) NOT NULL,
		is_extreme_small TINYINT(1) NOT NULL,
		combination    VARCHAR(16) NOT NULL,
		is_triple      TINYINT(1)  NOT NULL,
		is_pair        TINYINT(1)  NOT NULL,
		is_straight    TINYINT(1)  NOT NULL,
		is_misc        TINYINT(1)  NOT NULL,
		is_small_edge  TINYINT(1)  NOT NULL,
		is_middle      TINYINT(1)  NOT NULL,
		is_big_edge    TINYINT(1)  NOT NULL,
		is_edge        TINYINT(1)  NOT NULL,
		is_dragon      TINYINT(1)  NOT NULL,
		is_tiger       TINYINT(1)  NOT NULL,
		is_tie         TINYINT(1)  NOT NULL,
		created_at     DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (issue),
		KEY idx_open_time (open_time DESC)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS omission_counters (
		category   VARCHAR(16) NOT NULL,
		count      INT         NOT NULL DEFAULT 0,
		updated_at DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (category)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS daily_stats (
		stat_date  DATE        NOT NULL,
		category   VARCHAR(16) NOT NULL,
		count      INT         NOT NULL DEFAULT 0,
		updated_at DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (stat_date, category)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS predictions (
		issue           CHAR(7)      NOT NULL,
		type            VARCHAR(16)  NOT NULL,
		predicted_value VARCHAR(32)  NOT NULL,
		actual_numbers  CHAR(5)      NOT NULL DEFAULT '',
		actual_sum      TINYINT      NOT NULL DEFAULT 0,
		actual_value    VARCHAR(32)  NOT NULL DEFAULT '',
		hit             TINYINT      NOT NULL DEFAULT 0,
		created_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (issue, type),
		KEY idx_type_issue (type, issue DESC),
		KEY idx_type_hit (type, hit, issue DESC)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables when they do not exist.
func EnsureSchema(ctx context.Context, pools *Pools) error {
	for _, stmt := range schemaStatements {
		if _, err := pools.Write.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	return nil
}
