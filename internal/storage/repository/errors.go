// Ошибки-сентинелы уровня хранилища. Позволяют слоям выше (сервисам и
// HTTP-обработчикам) различать сценарии отказа через errors.Is и
// транслировать их в структурированные ответы, не завершая процесс.
package repository

import "errors"

// ErrUserNotFound возвращается, когда пользователь с указанным
// идентификатором отсутствует в базе.
var ErrUserNotFound = errors.New("user not found")

// ErrCredentialNotFound возвращается при операции над несуществующей
// учётной записью.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrDuplicateCredential возвращается при попытке добавить учётную запись
// с уже занятым username.
var ErrDuplicateCredential = errors.New("credential already exists")

// ErrCredentialUnavailable возвращается, когда условное обновление статуса
// не прошло: учётную запись успел закрепить конкурирующий вызов.
var ErrCredentialUnavailable = errors.New("credential is not available")

// ErrNoCredentialAssigned возвращается при освобождении учётной записи
// у пользователя, за которым ничего не закреплено.
var ErrNoCredentialAssigned = errors.New("no credential assigned")
