// Command ordergen connects to a running exchange and submits random
// orders to it, for populating a demo or load-testing the matching
// loop. It is the out-of-scope "demo order generator" from the
// exchange's external-collaborator list, not part of the core.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/Demiserular/crucible-exchange/internal/fixcodec"
)

var basePrices = map[string]float64{
	"AAPL":  180.0,
	"GOOGL": 140.0,
	"MSFT":  370.0,
	"AMZN":  175.0,
	"TSLA":  245.0,
}

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}
var quantities = []int64{10, 25, 50, 100, 200}

func main() {
	addr := flag.String("addr", "127.0.0.1:9878", "exchange address")
	count := flag.Int("count", 20, "number of orders to submit")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between orders")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	g := &generator{conn: conn, reader: bufio.NewReader(conn)}
	if err := g.logon(); err != nil {
		log.Fatalf("logon: %v", err)
	}
	fmt.Println("connected to exchange")

	for i := 0; i < *count; i++ {
		if err := g.submitRandomOrder(i + 1); err != nil {
			log.Printf("submit order %d: %v", i+1, err)
		}
		time.Sleep(*interval)
	}
}

type generator struct {
	conn   net.Conn
	reader *bufio.Reader
	seq    int
}

func (g *generator) nextSeq() int {
	g.seq++
	return g.seq
}

func (g *generator) logon() error {
	raw := fixcodec.Encode(fixcodec.MsgTypeLogon, g.nextSeq(), "ORDERGEN", "EXCHANGE", time.Now(), []fixcodec.Field{
		{Tag: fixcodec.TagHeartBtInt, Value: "30"},
	})
	if _, err := g.conn.Write(raw); err != nil {
		return err
	}
	_, err := g.readOne()
	return err
}

func (g *generator) submitRandomOrder(n int) error {
	symbol := symbols[rand.Intn(len(symbols))]
	side := fixcodec.SideBuy
	if rand.Intn(2) == 1 {
		side = fixcodec.SideSell
	}
	orderType := fixcodec.OrdTypeLimit
	if rand.Intn(2) == 1 {
		orderType = fixcodec.OrdTypeMarket
	}
	qty := quantities[rand.Intn(len(quantities))]
	clOrdID := fmt.Sprintf("GEN%06d", n)

	fields := []fixcodec.Field{
		{Tag: fixcodec.TagClOrdID, Value: clOrdID},
		{Tag: fixcodec.TagSymbol, Value: symbol},
		{Tag: fixcodec.TagSide, Value: side},
		{Tag: fixcodec.TagOrdType, Value: orderType},
		{Tag: fixcodec.TagOrderQty, Value: fmt.Sprintf("%d", qty)},
	}
	if orderType == fixcodec.OrdTypeLimit {
		base := basePrices[symbol]
		price := base + rand.Float64()*20 - 10
		fields = append(fields, fixcodec.Field{Tag: fixcodec.TagPrice, Value: fmt.Sprintf("%.2f", price)})
	}

	raw := fixcodec.Encode(fixcodec.MsgTypeNewOrderSingle, g.nextSeq(), "ORDERGEN", "EXCHANGE", time.Now(), fields)
	if _, err := g.conn.Write(raw); err != nil {
		return err
	}

	reply, err := g.readOne()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s %d -> %s\n", clOrdID, side, symbol, qty, reply.GetString(fixcodec.TagOrdStatus))
	return nil
}

func (g *generator) readOne() (*fixcodec.Message, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := g.reader.Read(chunk)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk[:n]...)
		frame, _, err := fixcodec.FrameNext(buf)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return fixcodec.Decode(frame), nil
		}
	}
}
