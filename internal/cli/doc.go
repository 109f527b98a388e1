// Package cli реализует инструмент командной строки планировщика.
//
// # Обзор
//
// Команды делятся на две группы:
//   - удалённые (asset, event) — работают с API демона через HTTP;
//   - локальные (validate, evaluate) — читают файл определений и
//     вычисляют политики в процессе, без БД и брокера.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API демона. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Типы ответов общие с internal/api.
//
//	client := cli.NewClient("http://localhost:8080")
//	assets, err := client.ListAssets()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) и деревья результатов — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: assetsched asset list --json | jq .
//
// ## Commands
//
//   - asset: list, show, evaluation
//   - event: report, run-status
//   - validate -f defs.yaml
//   - evaluate -f defs.yaml [--events history.json] [--state state.json] [--at RFC3339]
//
// Группы создаются фабричными функциями (NewAssetCmd и т.д.),
// принимающими clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
