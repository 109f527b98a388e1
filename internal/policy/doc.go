// Package policy загружает определения asset и их политик планирования из YAML.
//
// Файл определений описывает asset, их партиции, зависимости и дерево условий
// (или набор правил старого формата). Parse декодирует и валидирует файл,
// Build строит граф asset и проверяет каждую политику через condition.Validate.
//
// Пример:
//
//	version: 1
//	assets:
//	  - key: raw/events
//	    partitions: {type: daily, start: "2024-01-01"}
//	  - key: marts/daily
//	    partitions: {type: daily, start: "2024-01-01"}
//	    deps: [{key: raw/events}]
//	    condition:
//	      kind: and
//	      operands:
//	        - in_latest_time_window
//	        - kind: any_deps_match
//	          operand: {kind: updated_since_cron, cron: "0 * * * *"}
package policy
