// Package monitor закрывает зависшие run конвейера.
//
// Конвейер продвигает run только в ответ на сообщения, поэтому потерянный
// запрос этапа, погибший воркер или сбой после закрытия задания оставляют
// run в статусе ACTIVE навсегда. Monitor по расписанию находит такие run
// и закрывает их как FAILED с диагностикой в поле Error. Повторный запуск
// остаётся за оператором: автоматических ретраев у конвейера нет.
//
// Два прохода за тик:
//   - задания в статусе SCHEDULED старше MaxJobAge — закрывается задание
//     и его run;
//   - run в статусе ACTIVE старше MaxRunAge — закрывается run, даже если
//     открытого задания у него нет.
//
// Использование:
//
//	mon, err := monitor.New(monitor.Config{
//	    Runs:   stores.Runs,
//	    Jobs:   stores.Jobs,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	go func() { _ = mon.Run(ctx) }() // блокируется до отмены контекста
package monitor
